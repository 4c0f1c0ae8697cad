package execution

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plan-agent/pkg/events"
	"plan-agent/pkg/interp"
	"plan-agent/pkg/llm"
	"plan-agent/pkg/logger"
	"plan-agent/pkg/plan"
	"plan-agent/pkg/tools"
)

type stubLLM struct{}

func (stubLLM) Complete(ctx context.Context, prompt string, opts llm.Options) (string, error) {
	return "ok", nil
}

// testStack builds a registry over an interpreter with an echo tool and a
// block tool that parks until its context is cancelled.
func testStack(t *testing.T, cfg Config) *Registry {
	t.Helper()
	log := logger.CreateTestLogger()

	registry := tools.NewRegistry(log)
	require.NoError(t, registry.Register(tools.Tool{
		Name: "echo",
		Handler: func(ctx context.Context, args map[string]interface{}) (string, error) {
			return "echoed", nil
		},
	}))
	require.NoError(t, registry.Register(tools.Tool{
		Name: "block",
		Handler: func(ctx context.Context, args map[string]interface{}) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	}))

	it := interp.New(stubLLM{}, registry, nil, log, interp.Config{DefaultIterations: 20})
	execs := NewRegistry(it, log, cfg)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		execs.Shutdown(ctx)
	})
	return execs
}

func echoPlan(steps int) *plan.Plan {
	p := &plan.Plan{MaxIterations: 30}
	for i := 0; i < steps; i++ {
		p.Steps = append(p.Steps, plan.Step{
			ID:         string(rune('A' + i)),
			Type:       plan.StepTool,
			ToolName:   "echo",
			OutputName: "out_" + string(rune('a'+i)),
		})
	}
	p.Steps = append(p.Steps, plan.Step{ID: "END", Type: plan.StepEnd})
	return p
}

func drain(t *testing.T, sub *Subscriber) []events.Event {
	t.Helper()
	var got []events.Event
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, open := <-sub.Events:
			if !open {
				return got
			}
			got = append(got, ev)
		case <-deadline:
			t.Fatal("subscriber did not close in time")
		}
	}
}

func TestSubscriberSeesOrderedStream(t *testing.T) {
	execs := testStack(t, Config{})
	rec := execs.Launch(echoPlan(2), "test query")
	sub := rec.Subscribe()

	got := drain(t, sub)
	require.NotEmpty(t, got)

	assert.Equal(t, events.ExecutionStarted, got[0].Type)
	assert.Equal(t, events.ExecutionCompleted, got[len(got)-1].Type)
	for i, ev := range got {
		assert.Equal(t, i+1, ev.Seq, "seq must be dense and increasing")
	}

	snap := rec.Snapshot()
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Equal(t, "echoed", snap.FinalResult)
	assert.Equal(t, "test query", snap.Query)
}

func TestLateSubscriberGetsFullReplay(t *testing.T) {
	execs := testStack(t, Config{})
	rec := execs.Launch(echoPlan(2), "q")

	require.Eventually(t, func() bool {
		return rec.Snapshot().Status.IsTerminal()
	}, 5*time.Second, 10*time.Millisecond)

	sub := rec.Subscribe()
	got := drain(t, sub)

	assert.Equal(t, rec.Events(), got, "late subscriber replays the full log")
	assert.Equal(t, events.ExecutionStarted, got[0].Type)
	assert.Equal(t, events.ExecutionCompleted, got[len(got)-1].Type)
}

func TestSlowSubscriberIsDetached(t *testing.T) {
	rec := newRecord("r1", "q", &plan.Plan{}, func() {}, 1)

	// Never read: with a one-event buffer the stream overflows and the
	// subscriber is detached instead of blocking the publisher.
	sub := rec.Subscribe()
	for i := 0; i < 4; i++ {
		rec.Publish(events.NewStepStarted("S", "llm", ""))
	}

	got := drain(t, sub)
	assert.Len(t, got, 1, "only the buffered event survives")
	assert.Len(t, rec.Events(), 4, "the log itself keeps everything")

	// A fresh subscriber that keeps up still sees the full stream.
	fresh := rec.Subscribe()
	rec.Publish(events.NewExecutionCompleted("done", time.Now().UTC()))
	full := drain(t, fresh)
	assert.Len(t, full, 5)
	assert.Equal(t, events.ExecutionCompleted, full[len(full)-1].Type)
}

func TestStopCancelsRunningExecution(t *testing.T) {
	execs := testStack(t, Config{})

	p := &plan.Plan{Steps: []plan.Step{
		{ID: "B1", Type: plan.StepTool, ToolName: "block", OutputName: "never"},
		{ID: "END", Type: plan.StepEnd},
	}}
	rec := execs.Launch(p, "q")
	sub := rec.Subscribe()

	require.Eventually(t, func() bool {
		return rec.Snapshot().Status == StatusRunning
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, execs.Stop(rec.ID()))

	got := drain(t, sub)
	require.NotEmpty(t, got)
	assert.Equal(t, events.ExecutionStopped, got[len(got)-1].Type)
	assert.Equal(t, StatusStopped, rec.Snapshot().Status)
}

func TestGetUnknownExecution(t *testing.T) {
	execs := testStack(t, Config{})

	_, err := execs.Get("no-such-id")
	require.Error(t, err)

	var nf *ErrNotFound
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "no-such-id", nf.ID)
}

func TestSweepDropsFinishedExecutions(t *testing.T) {
	execs := testStack(t, Config{GracePeriod: time.Millisecond})
	rec := execs.Launch(echoPlan(1), "q")

	require.Eventually(t, func() bool {
		return rec.Snapshot().Status.IsTerminal()
	}, 5*time.Second, 10*time.Millisecond)

	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, 1, execs.Sweep())

	_, err := execs.Get(rec.ID())
	assert.Error(t, err)
}

func TestSweepKeepsRunningExecutions(t *testing.T) {
	execs := testStack(t, Config{GracePeriod: time.Millisecond})

	p := &plan.Plan{Steps: []plan.Step{
		{ID: "B1", Type: plan.StepTool, ToolName: "block", OutputName: "never"},
	}}
	rec := execs.Launch(p, "q")

	require.Eventually(t, func() bool {
		return rec.Snapshot().Status == StatusRunning
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, 0, execs.Sweep())
	_, err := execs.Get(rec.ID())
	assert.NoError(t, err)

	rec.Cancel()
}

func TestTerminalSubscriberChannelClosesAfterReplay(t *testing.T) {
	execs := testStack(t, Config{})
	rec := execs.Launch(echoPlan(1), "q")

	require.Eventually(t, func() bool {
		return rec.Snapshot().Status.IsTerminal()
	}, 5*time.Second, 10*time.Millisecond)

	sub := rec.Subscribe()
	got := drain(t, sub)
	assert.Len(t, got, rec.Snapshot().EventCount)
}
