package command

import (
	"context"

	"github.com/aretw0/deckhand/pkg/activity"
	"github.com/aretw0/deckhand/pkg/domain"
	"github.com/aretw0/deckhand/pkg/ports"
)

// TemplateActivity names the activity applying configuration sets.
const TemplateActivity = "cfn-init-call"

func (d *Dispatcher) runTemplate(ctx context.Context, snap ports.MetadataSnapshot, req *domain.CommandRequest, env Environment) *domain.CommandResult {
	result := domain.NewCommandResult()

	_, err := d.engine.Run(ctx, activity.Activity{Name: TemplateActivity}, func(ctx context.Context) (string, error) {
		sets, err := snap.ConfigSets(ctx, req)
		if err != nil {
			return "", err
		}
		result.ConfigSets = sets
		return d.config.RunConfigSets(ctx, snap.Identity(), sets, env.List())
	})
	if err != nil {
		d.logger.Error("Command execution failed", "err", err)
		result.Fail(domain.ReturnCodeTemplate, err)
		return result
	}
	result.Succeed()
	return result
}
