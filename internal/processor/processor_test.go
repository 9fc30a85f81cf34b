package processor_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/aretw0/deckhand/internal/processor"
	"github.com/aretw0/deckhand/internal/redact"
	"github.com/aretw0/deckhand/pkg/activity"
	"github.com/aretw0/deckhand/pkg/adapters/memory"
	"github.com/aretw0/deckhand/pkg/domain"
	"github.com/aretw0/deckhand/pkg/ports"
	"github.com/aretw0/deckhand/pkg/stage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDispatcher struct {
	calls      int
	eventsFile string
	events     string
	result     *domain.CommandResult
	onDispatch func(ctx context.Context)
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, req *domain.CommandRequest, eventsFile string) *domain.CommandResult {
	d.calls++
	d.eventsFile = eventsFile
	if d.events != "" {
		_ = os.WriteFile(eventsFile, []byte(d.events), 0644)
	}
	if d.onDispatch != nil {
		d.onDispatch(ctx)
	}
	if d.result != nil {
		return d.result
	}
	result := domain.NewCommandResult()
	result.Succeed()
	return result
}

type fakeIdentity struct {
	instanceID string
	err        error
}

func (f fakeIdentity) Refresh(ctx context.Context, requestID, resource string) (ports.MetadataSnapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	return hostSnapshot{id: domain.Identity{InstanceID: f.instanceID}}, nil
}

type hostSnapshot struct{ id domain.Identity }

func (s hostSnapshot) Identity() domain.Identity { return s.id }
func (s hostSnapshot) CommandDefinitions(ctx context.Context) (domain.Definitions, error) {
	return domain.Definitions{}, nil
}
func (s hostSnapshot) ConfigSets(ctx context.Context, req *domain.CommandRequest) ([]string, error) {
	return nil, nil
}
func (s hostSnapshot) ElectLeader(ctx context.Context, req *domain.CommandRequest) (bool, error) {
	return true, nil
}

type observed struct {
	status    domain.Status
	truncated bool
	count     int
}

func (o *observed) ObserveCommand(status domain.Status, truncated bool) {
	o.status = status
	o.truncated = truncated
	o.count++
}

func stageNum(n int) *int { return &n }

func setup(t *testing.T, d *fakeDispatcher, opts ...processor.Option) (*processor.Processor, *memory.Store, *activity.Engine) {
	t.Helper()
	store := memory.NewStore()
	engine := activity.NewEngine()
	opts = append([]processor.Option{processor.WithEventsDir(t.TempDir())}, opts...)
	return processor.New(engine, stage.NewTracker(store), d, opts...), store, engine
}

func TestExecute_CollectsEventsAndCleansUp(t *testing.T) {
	d := &fakeDispatcher{events: "msg: downloading\nseverity: INFO\ntimestamp: 1000\n---\nmsg: deployed\n"}
	obs := &observed{}
	p, _, engine := setup(t, d, processor.WithObserver(obs))

	result, err := p.Execute(context.Background(), &domain.CommandRequest{CommandName: "CMD-AppDeploy", RequestID: "r1"})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusSuccess, result.Status)
	require.Len(t, result.Events, 2)
	assert.Equal(t, "downloading", result.Events[0].Msg)
	assert.Equal(t, int64(1000), result.Events[0].Timestamp)

	_, statErr := os.Stat(d.eventsFile)
	assert.True(t, os.IsNotExist(statErr), "events file must be removed")

	records := engine.History().Records()
	require.NotEmpty(t, records)
	assert.Equal(t, "Activity [CMD-AppDeploy] completed.", records[len(records)-1].Message)

	assert.Equal(t, 1, obs.count)
	assert.Equal(t, domain.StatusSuccess, obs.status)
	assert.False(t, obs.truncated)
}

func TestExecute_FailureIsAResult(t *testing.T) {
	failed := domain.NewCommandResult()
	failed.Fail(domain.ReturnCodePipeline, errors.New("[CMD/Stage/Action] boom"))
	d := &fakeDispatcher{result: failed}
	p, _, _ := setup(t, d)

	result, err := p.Execute(context.Background(), &domain.CommandRequest{CommandName: "CMD"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailure, result.Status)
	assert.Equal(t, "[CMD/Stage/Action] boom", result.Msg)

	doc, data, err := p.Report(result)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailure, doc.Status)
	assert.JSONEq(t, `{"status":"FAILURE","api_version":"1.0","truncated":"false","results":[{"status":"FAILURE","msg":"[CMD/Stage/Action] boom","returncode":1,"events":[]}]}`, string(data))
}

func TestExecute_RecordsStageBeforeDispatch(t *testing.T) {
	d := &fakeDispatcher{}
	p, store, _ := setup(t, d)
	d.onDispatch = func(ctx context.Context) {
		got, err := store.Load(ctx, "r1")
		require.NoError(t, err)
		assert.Equal(t, 0, got)
	}

	_, err := p.Execute(context.Background(), &domain.CommandRequest{CommandName: "CMD", RequestID: "r1", StageNum: stageNum(0)})
	require.NoError(t, err)
	assert.Equal(t, 1, d.calls)
}

func TestExecute_Inadmissible(t *testing.T) {
	tests := []struct {
		name string
		req  *domain.CommandRequest
		opts []processor.Option
	}{
		{
			name: "stage without predecessor",
			req:  &domain.CommandRequest{CommandName: "CMD", RequestID: "r1", StageNum: stageNum(2)},
		},
		{
			name: "other instance",
			req:  &domain.CommandRequest{CommandName: "CMD", InstanceIDs: []string{"i-other"}},
			opts: []processor.Option{processor.WithInstanceID("i-self")},
		},
		{
			name: "other instance from metadata",
			req:  &domain.CommandRequest{CommandName: "CMD", InstanceIDs: []string{"i-other"}},
			opts: []processor.Option{processor.WithIdentity(fakeIdentity{instanceID: "i-self"})},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &fakeDispatcher{}
			p, _, _ := setup(t, d, tt.opts...)

			result, err := p.Execute(context.Background(), tt.req)
			assert.ErrorIs(t, err, domain.ErrInadmissible)
			assert.Nil(t, result)
			assert.Zero(t, d.calls)
		})
	}
}

func TestExecute_InstanceFromMetadata(t *testing.T) {
	d := &fakeDispatcher{}
	p, _, _ := setup(t, d, processor.WithIdentity(fakeIdentity{instanceID: "i-self"}))

	_, err := p.Execute(context.Background(), &domain.CommandRequest{CommandName: "CMD", InstanceIDs: []string{"i-a", "i-self"}})
	require.NoError(t, err)
	assert.Equal(t, 1, d.calls)
}

func TestExecute_MetadataFailure(t *testing.T) {
	d := &fakeDispatcher{}
	p, _, _ := setup(t, d, processor.WithIdentity(fakeIdentity{err: errors.New("no metadata")}))

	_, err := p.Execute(context.Background(), &domain.CommandRequest{CommandName: "CMD"})
	assert.ErrorContains(t, err, "no metadata")
	assert.Zero(t, d.calls)
}

func TestExecute_StagedSequence(t *testing.T) {
	d := &fakeDispatcher{}
	p, store, _ := setup(t, d)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := p.Execute(ctx, &domain.CommandRequest{CommandName: "CMD", RequestID: "r1", StageNum: stageNum(i), IsLastStage: i == 2})
		require.NoError(t, err, "stage %d", i)
	}
	assert.Equal(t, 3, d.calls)

	_, err := store.Load(ctx, "r1")
	assert.ErrorIs(t, err, domain.ErrStageNotFound, "last stage clears the watermark")

	_, err = p.Execute(ctx, &domain.CommandRequest{CommandName: "CMD", RequestID: "r1", StageNum: stageNum(1)})
	assert.ErrorIs(t, err, domain.ErrInadmissible)
}

func TestExecute_RedactsReceivedCommand(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	p, _, _ := setup(t, &fakeDispatcher{},
		processor.WithLogger(logger),
		processor.WithRedactor(redact.New(redact.DefaultPatterns...)),
	)

	req, err := domain.ParseCommandRequest([]byte(`{"command_name":"CMD-Db","request_id":"r9","data":{"db_password":"hunter2","db":"orders"}}`), domain.Invocation{})
	require.NoError(t, err)

	_, err = p.Execute(context.Background(), req)
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "Received command CMD-Db")
	assert.Contains(t, buf.String(), "orders")
	assert.NotContains(t, buf.String(), "hunter2")
}
