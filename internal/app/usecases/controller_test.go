package usecases

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stategraph/stategraph/internal/adapters/repository/memory"
	"github.com/stategraph/stategraph/internal/app/dto"
	"github.com/stategraph/stategraph/internal/core/checkpoint"
	"github.com/stategraph/stategraph/internal/core/graph"
	"github.com/stategraph/stategraph/internal/core/state"
)

// clarifyGraph pauses before "answer" whenever the question is unclear,
// surfacing a clarification prompt for the caller.
func clarifyGraph(t *testing.T) *graph.Graph {
	t.Helper()
	schema := state.NewSchema().
		AddField("question", state.Field{Reducer: state.ReplaceIfNonEmpty}).
		AddField("clarification", state.Field{Reducer: state.Replace}).
		AddField("answers", state.Field{Reducer: state.AppendWithReset})

	return mustCompile(t, graph.NewBuilder("clarify", schema).
		AddNode("triage", graph.NodeFunc(func(ctx context.Context, s state.State) (state.State, error) {
			if s["question"] == "unclear" {
				return state.State{"clarification": "Which flat type do you mean?"}, nil
			}
			return state.State{"clarification": ""}, nil
		})).
		AddNode("answer", graph.NodeFunc(func(ctx context.Context, s state.State) (state.State, error) {
			return state.State{"answers": state.Append("answered: " + s["question"].(string))}, nil
		})).
		AddEdge(graph.Start, "triage").
		AddConditionalEdge("triage", func(ctx context.Context, s state.State) (graph.Decision, error) {
			return graph.Goto("answer"), nil
		}, "answer").
		AddEdge("answer", graph.End).
		InterruptBefore("answer"))
}

func newTestController(t *testing.T, g *graph.Graph) (*Controller, *memory.Saver) {
	t.Helper()
	saver := memory.NewSaver(nil)
	return NewController(NewExecutor(g, saver), saver), saver
}

func TestControllerSubmitStartsAndResumes(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestController(t, clarifyGraph(t))

	// First submit on an unknown thread starts fresh and pauses at the
	// interrupt with the clarification prompt attached.
	result, err := c.Submit(ctx, "t1", state.State{"question": "unclear"})
	require.NoError(t, err)
	require.True(t, result.Paused())
	require.NotNil(t, result.Interrupt)
	assert.Equal(t, "Which flat type do you mean?", result.Interrupt.Message)

	// Second submit on the paused thread resumes with the revised input,
	// the caller never distinguishing the two cases.
	result, err = c.Submit(ctx, "t1", state.State{"question": "4-room resale"})
	require.NoError(t, err)
	assert.Equal(t, dto.RunStatusCompleted, result.Status)
	assert.Equal(t, []interface{}{"answered: 4-room resale"}, result.Output["answers"])

	// A submit on the completed thread starts a fresh run.
	result, err = c.Submit(ctx, "t1", state.State{"question": "clear"})
	require.NoError(t, err)
	require.True(t, result.Paused())
	assert.Empty(t, result.Interrupt.Message)
}

func TestControllerSubmitAfterFailure(t *testing.T) {
	ctx := context.Background()
	schema := state.NewSchema().
		AddField("attempts", state.Field{Reducer: state.AppendWithReset})

	calls := 0
	g := mustCompile(t, graph.NewBuilder("flaky", schema).
		AddNode("try", graph.NodeFunc(func(ctx context.Context, s state.State) (state.State, error) {
			calls++
			if calls == 1 {
				return nil, assert.AnError
			}
			return state.State{"attempts": state.Append(calls)}, nil
		})).
		AddEdge(graph.Start, "try").
		AddEdge("try", graph.End))

	c, saver := newTestController(t, g)

	_, err := c.Submit(ctx, "t1", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, dto.ErrCollaborator)

	cp, err := saver.Load(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, checkpoint.StatusFailed, cp.Status)

	// A failed thread restarts from scratch on the next submit.
	result, err := c.Submit(ctx, "t1", nil)
	require.NoError(t, err)
	assert.Equal(t, dto.RunStatusCompleted, result.Status)
}

func TestControllerRejectsConcurrentSubmit(t *testing.T) {
	ctx := context.Background()
	schema := state.NewSchema().
		AddField("out", state.Field{Reducer: state.Replace})

	entered := make(chan struct{}, 2)
	release := make(chan struct{})
	g := mustCompile(t, graph.NewBuilder("slow", schema).
		AddNode("block", graph.NodeFunc(func(ctx context.Context, s state.State) (state.State, error) {
			entered <- struct{}{}
			<-release
			return state.State{"out": "done"}, nil
		})).
		AddEdge(graph.Start, "block").
		AddEdge("block", graph.End))

	c, _ := newTestController(t, g)

	done := make(chan error, 1)
	go func() {
		_, err := c.Submit(ctx, "t1", nil)
		done <- err
	}()
	<-entered

	_, err := c.Submit(ctx, "t1", nil)
	assert.ErrorIs(t, err, dto.ErrRunInFlight)

	close(release)
	require.NoError(t, <-done)

	// A different thread is unaffected by t1's earlier run.

	result, err := c.Submit(ctx, "t2", nil)
	require.NoError(t, err)
	assert.Equal(t, dto.RunStatusCompleted, result.Status)
}

func TestControllerCancel(t *testing.T) {
	schema := state.NewSchema().
		AddField("out", state.Field{Reducer: state.Replace})

	entered := make(chan struct{})
	g := mustCompile(t, graph.NewBuilder("slow", schema).
		AddNode("block", graph.NodeFunc(func(ctx context.Context, s state.State) (state.State, error) {
			close(entered)
			<-ctx.Done()
			return nil, ctx.Err()
		})).
		AddEdge(graph.Start, "block").
		AddEdge("block", graph.End))

	c, saver := newTestController(t, g)

	done := make(chan error, 1)
	go func() {
		_, err := c.Submit(context.Background(), "t1", nil)
		done <- err
	}()
	<-entered

	require.True(t, c.Cancel("t1"))

	select {
	case err := <-done:
		assert.ErrorIs(t, err, dto.ErrCancelled)
	case <-time.After(5 * time.Second):
		t.Fatal("cancelled run did not return")
	}

	cp, err := saver.Load(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, checkpoint.StatusFailed, cp.Status)

	// No in-flight run left to cancel.
	assert.False(t, c.Cancel("t1"))
}

func TestControllerThreadStateCarriesAcrossRuns(t *testing.T) {
	ctx := context.Background()
	schema := state.NewSchema().
		AddField("question", state.Field{Reducer: state.ReplaceIfNonEmpty}).
		AddField("history", state.Field{Reducer: state.AppendWithReset})

	g := mustCompile(t, graph.NewBuilder("chat", schema).
		AddNode("turn", graph.NodeFunc(func(ctx context.Context, s state.State) (state.State, error) {
			return state.State{"history": state.Append("turn: " + s["question"].(string))}, nil
		})).
		AddEdge(graph.Start, "turn").
		AddEdge("turn", graph.End))

	c, _ := newTestController(t, g)

	result, err := c.Submit(ctx, "t1", state.State{"question": "first"})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"turn: first"}, result.Output["history"])

	// A second run on the same thread sees the first run's history; the
	// completed checkpoint seeds the new run.
	result, err = c.Submit(ctx, "t1", state.State{"question": "second"})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"turn: first", "turn: second"}, result.Output["history"])

	// A different thread starts empty.
	result, err = c.Submit(ctx, "t2", state.State{"question": "other"})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"turn: other"}, result.Output["history"])
}

func TestControllerReset(t *testing.T) {
	ctx := context.Background()
	c, saver := newTestController(t, clarifyGraph(t))

	_, err := c.Submit(ctx, "t1", state.State{"question": "unclear"})
	require.NoError(t, err)

	fresh := c.Reset("t1")
	assert.NotEmpty(t, fresh)
	assert.NotEqual(t, "t1", fresh)

	// The old thread's checkpoint survives the reset.
	cp, err := saver.Load(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "unclear", cp.State["question"])

	// The fresh thread starts with empty append fields despite the old
	// thread's persisted data.
	st, err := c.Status(ctx, fresh)
	require.NoError(t, err)
	assert.False(t, st.Known)

	result, err := c.Submit(ctx, fresh, state.State{"question": "clear"})
	require.NoError(t, err)
	require.True(t, result.Paused())
	assert.Empty(t, result.Interrupt.State["answers"])

	// Resetting a thread with no history still mints a fresh id.
	assert.NotEqual(t, fresh, c.Reset("never-seen"))
}

func TestControllerStatus(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestController(t, clarifyGraph(t))

	st, err := c.Status(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, st.Known)

	_, err = c.Submit(ctx, "t1", state.State{"question": "unclear"})
	require.NoError(t, err)

	st, err = c.Status(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, st.Known)
	assert.Equal(t, dto.RunStatusPaused, st.Status)
	assert.Equal(t, []string{"answer"}, st.PendingNodes)
}

func TestControllerCustomPauseMessage(t *testing.T) {
	ctx := context.Background()
	saver := memory.NewSaver(nil)
	g := clarifyGraph(t)
	c := NewController(NewExecutor(g, saver), saver,
		WithPauseMessage(func(s state.State) string { return "custom prompt" }))

	result, err := c.Submit(ctx, "t1", state.State{"question": "unclear"})
	require.NoError(t, err)
	require.True(t, result.Paused())
	assert.Equal(t, "custom prompt", result.Interrupt.Message)
}
