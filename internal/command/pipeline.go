package command

import (
	"context"
	"fmt"

	"github.com/aretw0/deckhand/pkg/activity"
	"github.com/aretw0/deckhand/pkg/domain"
	"github.com/aretw0/deckhand/pkg/ports"
)

func (d *Dispatcher) runPipeline(ctx context.Context, snap ports.MetadataSnapshot, req *domain.CommandRequest, def domain.CommandDefinition, env Environment) *domain.CommandResult {
	result := domain.NewCommandResult()
	d.logger.Info(fmt.Sprintf("Executing command %s activities...", req.CommandName))

	if err := d.pipeline(ctx, snap, req, def, env); err != nil {
		d.logger.Error("Command execution failed", "err", err)
		result.Fail(domain.ReturnCodePipeline, err)
		return result
	}
	result.Succeed()
	return result
}

func (d *Dispatcher) pipeline(ctx context.Context, snap ports.MetadataSnapshot, req *domain.CommandRequest, def domain.CommandDefinition, env Environment) error {
	name := req.CommandName
	count := len(def.Stages)

	start, end := 0, count-1
	if req.HasStage() {
		start, end = req.Stage(), req.Stage()
		if start < 0 || start >= count {
			return domain.RuntimeErrorf("Stage %d is not defined for command %s, which has %d stages.", start, name, count)
		}
	}

	if start == 0 {
		d.logger.Info(fmt.Sprintf("Running AddonsBefore for command %s...", name))
		_, err := d.engine.Run(ctx, activity.Activity{Name: "AddonsBefore"}, func(ctx context.Context) (string, error) {
			return d.addons.Before(ctx, name, env.List())
		})
		if err != nil {
			return err
		}
	}

	d.logger.Debug(fmt.Sprintf("Running stages of Command %s from stage %d to stage %d...", name, start, end))
	for i := start; i <= end; i++ {
		if err := d.runStage(ctx, snap, req, i, def.Stages[i], env); err != nil {
			return err
		}
	}

	if end == count-1 {
		d.logger.Info(fmt.Sprintf("Running AddonsAfter for command %s...", name))
		_, err := d.engine.Run(ctx, activity.Activity{Name: "AddonsAfter"}, func(ctx context.Context) (string, error) {
			return d.addons.After(ctx, name, env.List())
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) runStage(ctx context.Context, snap ports.MetadataSnapshot, req *domain.CommandRequest, index int, stage domain.Stage, env Environment) error {
	d.logger.Info(fmt.Sprintf("Running stage %d of command %s...", index, req.CommandName))

	if stage.LeaderElection {
		leader, err := snap.ElectLeader(ctx, req)
		if err != nil {
			return fmt.Errorf("leader election failed: %w", err)
		}
		d.logger.Info("Resolved command leadership", "leader", leader)
		env.SetLeader(leader)
	}
	env.SetStage(index)
	vars := env.List()

	_, err := d.engine.Run(ctx, activity.Activity{Name: stage.Name}, func(ctx context.Context) (string, error) {
		d.logger.Debug(fmt.Sprintf("Loaded %d actions for stage %d.", len(stage.Actions), index))
		for i, action := range stage.Actions {
			d.logger.Info(fmt.Sprintf("Running %d of %d actions: %s...", i+1, len(stage.Actions), action.Name))
			act := activity.Activity{
				Name:       action.Name,
				Timeout:    action.TimeoutDuration(),
				MaxRetries: action.Retries,
			}
			if _, err := d.engine.Run(ctx, act, func(ctx context.Context) (string, error) {
				return d.runAction(ctx, action, vars)
			}); err != nil {
				return "", err
			}
		}
		return fmt.Sprintf("Command %s stage %d completed.", req.CommandName, index), nil
	})
	return err
}

func (d *Dispatcher) runAction(ctx context.Context, action domain.Action, env []string) (string, error) {
	switch action.Type.Normalize() {
	case domain.ActionInfra:
		return d.actions.RunInfra(ctx, action.Value, env)
	case domain.ActionHook:
		return d.hooks.Run(ctx, d.hookDir(action.Value), env)
	case domain.ActionShell:
		return d.actions.RunShell(ctx, action.Value, env)
	default:
		return "", domain.ConfigErrorf("Not recognized action type: %s.", action.Type)
	}
}
