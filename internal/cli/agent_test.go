//go:build !windows

package cli_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/deckhand/internal/cli"
	"github.com/aretw0/deckhand/internal/config"
	"github.com/aretw0/deckhand/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const metadataDoc = `
identity:
  stack_name: stack
  resource: AWSEBAutoScalingGroup
  region: eu-west-1
  instance_id: i-1
command_definitions:
  CMD-Test:
    stages:
      - name: Prepare
        actions:
          - name: Infra-Greet
            type: infra
            value: greet
      - name: Deploy
        leader_election: true
        actions:
          - name: Hook-Pre
            type: hook
            value: appdeploy/pre
          - name: Sh-Leader
            type: sh
            value: 'echo "msg: leader=$DECKHAND_IS_COMMAND_LEADER" >> "$DECKHAND_EVENT_FILE"'
config_sets:
  CMD-Other: [Infra-One, Hook-Two]
`

const infraDoc = `
infra:
  - name: greet
    command: /bin/sh
    args: ["-c", "printf 'msg: infra ran\nseverity: WARN\n---\n' >> \"$DECKHAND_EVENT_FILE\""]
`

func writeFile(t *testing.T, path, content string, mode os.FileMode) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), mode))
}

func newAgent(t *testing.T) *cli.Agent {
	t.Helper()
	dir := t.TempDir()

	writeFile(t, filepath.Join(dir, "metadata.yaml"), metadataDoc, 0644)
	writeFile(t, filepath.Join(dir, "infra.yaml"), infraDoc, 0644)
	writeFile(t, filepath.Join(dir, "hooks", "appdeploy", "pre", "01.sh"),
		"#!/bin/sh\necho \"msg: hook stage $DECKHAND_STAGE_NUM\" >> \"$DECKHAND_EVENT_FILE\"\necho '---' >> \"$DECKHAND_EVENT_FILE\"\n", 0755)
	writeFile(t, filepath.Join(dir, "bin", "cfn-elect-cmd-leader"), "#!/bin/sh\nexit 1\n", 0755)
	writeFile(t, filepath.Join(dir, "bin", "cfn-init"), "#!/bin/sh\necho \"applied $*\"\n", 0755)

	agent, err := cli.NewAgent(config.Config{
		StageBackend: config.BackendMemory,
		MetadataFile: filepath.Join(dir, "metadata.yaml"),
		InfraFile:    filepath.Join(dir, "infra.yaml"),
		HooksRoot:    filepath.Join(dir, "hooks"),
		AddonsRoot:   filepath.Join(dir, "addons"),
		CfnBinDir:    filepath.Join(dir, "bin"),
		EventsDir:    filepath.Join(dir, "events"),
		LogFile:      filepath.Join(dir, "deckhand.log"),
		HistoryFile:  filepath.Join(dir, "history.log"),
		LogLevel:     "debug",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = agent.Close() })
	return agent
}

func TestAgent_PipelineEndToEnd(t *testing.T) {
	agent := newAgent(t)

	result, err := agent.Processor.Execute(context.Background(), &domain.CommandRequest{CommandName: "CMD-Test", RequestID: "r1"})
	require.NoError(t, err)
	require.Equal(t, domain.StatusSuccess, result.Status, result.Msg)

	var msgs []string
	for _, ev := range result.Events {
		msgs = append(msgs, ev.Msg)
	}
	assert.Equal(t, []string{"infra ran", "hook stage 1", "leader=false"}, msgs)
	assert.Equal(t, "WARN", result.Events[0].Severity)

	doc, _, err := agent.Processor.Report(result)
	require.NoError(t, err)
	assert.False(t, doc.IsTruncated())

	history, err := os.ReadFile(agent.Config.HistoryFile)
	require.NoError(t, err)
	assert.Contains(t, string(history), "Activity [CMD-Test/Deploy/Hook-Pre/01.sh] completed.")
}

func TestAgent_StagedDelivery(t *testing.T) {
	agent := newAgent(t)
	ctx := context.Background()
	stage := func(n int) *int { return &n }

	_, err := agent.Processor.Execute(ctx, &domain.CommandRequest{CommandName: "CMD-Test", RequestID: "r2", StageNum: stage(1)})
	assert.ErrorIs(t, err, domain.ErrInadmissible)

	result, err := agent.Processor.Execute(ctx, &domain.CommandRequest{CommandName: "CMD-Test", RequestID: "r2", StageNum: stage(0)})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, result.Status)

	got, err := agent.Store.Load(ctx, "r2")
	require.NoError(t, err)
	assert.Equal(t, 0, got)

	result, err = agent.Processor.Execute(ctx, &domain.CommandRequest{CommandName: "CMD-Test", RequestID: "r2", StageNum: stage(1), IsLastStage: true})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, result.Status)

	_, err = agent.Store.Load(ctx, "r2")
	assert.ErrorIs(t, err, domain.ErrStageNotFound)
}

func TestAgent_TemplateEndToEnd(t *testing.T) {
	agent := newAgent(t)

	result, err := agent.Processor.Execute(context.Background(), &domain.CommandRequest{CommandName: "CMD-Other"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, result.Status, result.Msg)
	assert.Equal(t, []string{"Infra-One", "Hook-Two"}, result.ConfigSets)

	doc, _, err := agent.Processor.Report(result)
	require.NoError(t, err)
	assert.Equal(t, "Infra-One,Hook-Two", doc.Results[0].ConfigSet)
}

func TestAgent_OtherInstanceIsInadmissible(t *testing.T) {
	agent := newAgent(t)

	_, err := agent.Processor.Execute(context.Background(), &domain.CommandRequest{CommandName: "CMD-Test", InstanceIDs: []string{"i-2"}})
	assert.ErrorIs(t, err, domain.ErrInadmissible)
}
