package activity_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/aretw0/deckhand/pkg/activity"
	"github.com/aretw0/deckhand/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(buf *bytes.Buffer) *activity.Engine {
	logger := slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return activity.NewEngine(activity.WithLogger(logger))
}

func TestEngine_RetriesThenFatal(t *testing.T) {
	engine := activity.NewEngine()
	calls := 0

	_, err := engine.Run(context.Background(), activity.Activity{Name: "Flaky", MaxRetries: 3}, func(ctx context.Context) (string, error) {
		calls++
		return "", domain.RuntimeErrorf("still broken")
	})

	require.Error(t, err)
	assert.Equal(t, 4, calls, "body must run MaxRetries+1 times")

	var ae *domain.ActivityError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, domain.KindFatal, ae.Kind)
	assert.Equal(t, domain.ReasonFailed, ae.Reason)
	assert.Equal(t, "Flaky", ae.Path)
	assert.Equal(t, "still broken", ae.Msg)
	assert.Equal(t, "[Flaky] still broken", err.Error())
}

func TestEngine_RetrySucceeds(t *testing.T) {
	engine := activity.NewEngine()
	calls := 0

	result, err := engine.Run(context.Background(), activity.Activity{Name: "Eventually", MaxRetries: 2}, func(ctx context.Context) (string, error) {
		calls++
		if calls < 2 {
			return "", domain.ExecErrorf(errors.New("exit status 1"), "script failed")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 2, calls)

	var retrying int
	for _, rec := range engine.History().Records() {
		if rec.Message == "Activity [Eventually] retrying." {
			retrying++
		}
	}
	assert.Equal(t, 1, retrying)
}

func TestEngine_NonRetryableIsInternal(t *testing.T) {
	engine := activity.NewEngine()
	calls := 0

	_, err := engine.Run(context.Background(), activity.Activity{Name: "Buggy", MaxRetries: 5}, func(ctx context.Context) (string, error) {
		calls++
		return "", errors.New("nil pointer somewhere")
	})

	assert.Equal(t, 1, calls)
	var ae *domain.ActivityError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, domain.KindInternal, ae.Kind)
	assert.Equal(t, domain.ReasonInternal, ae.Reason)
}

func TestEngine_ConfigErrorIsFatalImmediately(t *testing.T) {
	engine := activity.NewEngine()
	calls := 0

	_, err := engine.Run(context.Background(), activity.Activity{
		Name:       "Misconfigured",
		MaxRetries: 3,
		Retryable:  []domain.Kind{domain.KindConfig, domain.KindRuntime},
	}, func(ctx context.Context) (string, error) {
		calls++
		return "", domain.ConfigErrorf("Not recognized action type: python.")
	})

	assert.Equal(t, 1, calls)
	var ae *domain.ActivityError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, domain.KindFatal, ae.Kind)
	assert.Equal(t, domain.ReasonFailed, ae.Reason)
	assert.Equal(t, "[Misconfigured] Not recognized action type: python.", err.Error())
}

func TestEngine_CustomRetryableSet(t *testing.T) {
	engine := activity.NewEngine()
	calls := 0

	_, err := engine.Run(context.Background(), activity.Activity{
		Name:       "OnlyExec",
		MaxRetries: 2,
		Retryable:  []domain.Kind{domain.KindExec},
	}, func(ctx context.Context) (string, error) {
		calls++
		return "", domain.RuntimeErrorf("not retried here")
	})

	assert.Equal(t, 1, calls)
	assert.Equal(t, domain.KindInternal, domain.KindOf(err))
}

func TestEngine_Timeout(t *testing.T) {
	engine := activity.NewEngine()

	start := time.Now()
	_, err := engine.Run(context.Background(), activity.Activity{
		Name:       "Slow",
		Timeout:    50 * time.Millisecond,
		MaxRetries: 10,
	}, func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", domain.RuntimeErrorf("interrupted")
	})

	assert.Less(t, time.Since(start), 2*time.Second)
	var ae *domain.ActivityError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, domain.KindTimeout, ae.Kind)
	assert.Equal(t, domain.ReasonTimeout, ae.Reason)
	assert.Equal(t, 0, engine.InFlight())
}

func TestEngine_TimeoutAbandonsUncooperativeBody(t *testing.T) {
	engine := activity.NewEngine()
	release := make(chan struct{})
	defer close(release)

	_, err := engine.Run(context.Background(), activity.Activity{Name: "Stuck", Timeout: 20 * time.Millisecond}, func(ctx context.Context) (string, error) {
		<-release
		return "late", nil
	})

	assert.Equal(t, domain.KindTimeout, domain.KindOf(err))
}

func TestEngine_AbandonedBodyLeavesHistoryClosed(t *testing.T) {
	engine := activity.NewEngine()
	release := make(chan struct{})
	returned := make(chan struct{}, 1)

	_, err := engine.Run(context.Background(), activity.Activity{Name: "Stubborn", Timeout: 20 * time.Millisecond, MaxRetries: 3}, func(ctx context.Context) (string, error) {
		defer func() {
			select {
			case returned <- struct{}{}:
			default:
			}
		}()
		<-release
		return "", domain.RuntimeErrorf("late failure")
	})
	require.Equal(t, domain.KindTimeout, domain.KindOf(err))

	close(release)
	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("body never returned")
	}
	time.Sleep(20 * time.Millisecond)

	records := engine.History().Records()
	require.NotEmpty(t, records)
	assert.Equal(t, "Activity [Stubborn] timed out.", records[len(records)-1].Message)
	for _, rec := range records {
		assert.NotEqual(t, "Activity [Stubborn] retrying.", rec.Message)
	}
}

func TestEngine_NestedPath(t *testing.T) {
	var buf bytes.Buffer
	engine := newTestEngine(&buf)
	var innerPath string
	var innerDepth int

	_, err := engine.Run(context.Background(), activity.Activity{Name: "Deploy"}, func(ctx context.Context) (string, error) {
		return engine.Run(ctx, activity.Activity{Name: "StageWriteApp"}, func(ctx context.Context) (string, error) {
			return engine.Run(ctx, activity.Activity{Name: "Action1"}, func(ctx context.Context) (string, error) {
				innerPath = activity.Path(ctx)
				innerDepth = activity.Depth(ctx)
				return "done", nil
			})
		})
	})

	require.NoError(t, err)
	assert.Equal(t, "Deploy/StageWriteApp/Action1", innerPath)
	assert.Equal(t, 3, innerDepth)
	assert.Contains(t, buf.String(), "activity=Deploy/StageWriteApp/Action1")
	assert.Equal(t, 0, engine.InFlight())
}

func TestEngine_NestedFailurePropagatesUnchanged(t *testing.T) {
	engine := activity.NewEngine()
	var inner error

	_, err := engine.Run(context.Background(), activity.Activity{Name: "Outer", MaxRetries: 3}, func(ctx context.Context) (string, error) {
		_, inner = engine.Run(ctx, activity.Activity{Name: "Inner"}, func(ctx context.Context) (string, error) {
			return "", domain.RuntimeErrorf("disk full")
		})
		return "", inner
	})

	require.Error(t, err)
	assert.Same(t, inner, err, "nested activity failures must not be re-wrapped")

	var ae *domain.ActivityError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "Outer/Inner", ae.Path)
	assert.Equal(t, "[Outer/Inner] disk full", err.Error())
}

func TestEngine_NestedTimeoutPropagates(t *testing.T) {
	engine := activity.NewEngine()

	_, err := engine.Run(context.Background(), activity.Activity{Name: "Outer"}, func(ctx context.Context) (string, error) {
		return engine.Run(ctx, activity.Activity{Name: "Inner", Timeout: 20 * time.Millisecond}, func(ctx context.Context) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		})
	})

	var ae *domain.ActivityError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, domain.KindTimeout, ae.Kind)
	assert.Equal(t, "Outer/Inner", ae.Path)
}

func TestEngine_OuterTimeoutWins(t *testing.T) {
	engine := activity.NewEngine()

	_, err := engine.Run(context.Background(), activity.Activity{Name: "Outer", Timeout: 30 * time.Millisecond}, func(ctx context.Context) (string, error) {
		return engine.Run(ctx, activity.Activity{Name: "Inner"}, func(ctx context.Context) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		})
	})

	var ae *domain.ActivityError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, domain.KindTimeout, ae.Kind)
	assert.Equal(t, "Outer", ae.Path)
}

func TestEngine_HistoryAndRelease(t *testing.T) {
	engine := activity.NewEngine()

	_, _ = engine.Run(context.Background(), activity.Activity{Name: "A"}, func(ctx context.Context) (string, error) {
		return "", domain.RuntimeErrorf("nope")
	})
	_, _ = engine.Run(context.Background(), activity.Activity{Name: "B"}, func(ctx context.Context) (string, error) {
		return "", errors.New("surprise")
	})
	_, _ = engine.Run(context.Background(), activity.Activity{Name: "C"}, func(ctx context.Context) (string, error) {
		return "fine", nil
	})

	var messages []string
	for _, rec := range engine.History().Records() {
		messages = append(messages, rec.Message)
	}
	assert.Equal(t, []string{
		"Activity [A] started.",
		"Activity [A] failed.",
		"Activity [B] started.",
		"Activity [B] internal failure.",
		"Activity [C] started.",
		"Activity [C] completed.",
	}, messages)
	assert.Equal(t, 0, engine.InFlight())
}

func TestEngine_ResultFormatting(t *testing.T) {
	var buf bytes.Buffer
	engine := newTestEngine(&buf)

	result, err := engine.Run(context.Background(), activity.Activity{Name: "Blank"}, func(ctx context.Context) (string, error) {
		return "  \n ", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "", result)
	assert.Contains(t, buf.String(), `msg="Completed activity."`)

	buf.Reset()
	result, err = engine.Run(context.Background(), activity.Activity{Name: "Lines"}, func(ctx context.Context) (string, error) {
		return "one\ntwo", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo", result)
	assert.Contains(t, buf.String(), `Result:\n  one\n  two`)
}

func TestEngine_PanicIsInternal(t *testing.T) {
	engine := activity.NewEngine()

	_, err := engine.Run(context.Background(), activity.Activity{Name: "Panicky"}, func(ctx context.Context) (string, error) {
		panic("kaboom")
	})

	var ae *domain.ActivityError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, domain.KindInternal, ae.Kind)
	assert.Contains(t, ae.Msg, "kaboom")
	assert.Equal(t, 0, engine.InFlight())
}

func TestEngine_Hooks(t *testing.T) {
	var started, finished []activity.Event
	engine := activity.NewEngine(activity.WithHooks(activity.Hooks{
		OnStart:  func(ctx context.Context, e activity.Event) { started = append(started, e) },
		OnFinish: func(ctx context.Context, e activity.Event) { finished = append(finished, e) },
	}))

	_, _ = engine.Run(context.Background(), activity.Activity{Name: "Outer"}, func(ctx context.Context) (string, error) {
		return engine.Run(ctx, activity.Activity{Name: "Inner", MaxRetries: 1}, func(ctx context.Context) (string, error) {
			return "", domain.RuntimeErrorf("x")
		})
	})

	require.Len(t, started, 2)
	require.Len(t, finished, 2)
	assert.Equal(t, "Outer/Inner", finished[0].Path)
	assert.Equal(t, activity.OutcomeFailed, finished[0].Outcome)
	assert.Equal(t, 2, finished[0].Attempts)
	assert.Equal(t, "Outer", finished[1].Path)
	assert.Equal(t, activity.OutcomeAborted, finished[1].Outcome)
}
