package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counterState struct {
	visits []string
	loops  int
}

type noopDelta struct{}

func (noopDelta) Apply() {}

func TestGraph_LinearRun(t *testing.T) {
	g := New("a")
	g.AddNode("a", func(ctx context.Context, s any) (StateDelta, error) {
		s.(*counterState).visits = append(s.(*counterState).visits, "a")
		return noopDelta{}, nil
	})
	g.AddNode("b", func(ctx context.Context, s any) (StateDelta, error) {
		s.(*counterState).visits = append(s.(*counterState).visits, "b")
		return noopDelta{}, nil
	})
	g.SetStaticEdge("a", "b")
	g.SetStaticEdge("b", End)

	st := &counterState{}
	err := g.Run(context.Background(), st, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, st.visits)
}

func TestGraph_BranchLoopsThenEnds(t *testing.T) {
	g := New("work")
	g.AddNode("work", func(ctx context.Context, s any) (StateDelta, error) {
		cs := s.(*counterState)
		cs.loops++
		cs.visits = append(cs.visits, "work")
		return noopDelta{}, nil
	})
	g.SetBranchEdge("work", func(ctx context.Context, s any) (string, error) {
		if s.(*counterState).loops < 3 {
			return "work", nil
		}
		return End, nil
	})

	st := &counterState{}
	err := g.Run(context.Background(), st, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, st.loops)
}

func TestGraph_NodeErrorStopsWalk(t *testing.T) {
	g := New("a")
	boom := errors.New("boom")
	g.AddNode("a", func(ctx context.Context, s any) (StateDelta, error) {
		return nil, boom
	})

	err := g.Run(context.Background(), &counterState{}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestGraph_UnknownBranchTargetErrors(t *testing.T) {
	g := New("a")
	g.AddNode("a", func(ctx context.Context, s any) (StateDelta, error) {
		return noopDelta{}, nil
	})
	g.SetBranchEdge("a", func(ctx context.Context, s any) (string, error) {
		return "ghost", nil
	})

	err := g.Run(context.Background(), &counterState{}, nil)
	require.Error(t, err)
}

func TestGraph_ContextCancelledStopsWalk(t *testing.T) {
	g := New("a")
	g.AddNode("a", func(ctx context.Context, s any) (StateDelta, error) {
		return noopDelta{}, nil
	})
	g.SetStaticEdge("a", "b")
	g.AddNode("b", func(ctx context.Context, s any) (StateDelta, error) {
		t.Fatal("b should not run after cancellation")
		return noopDelta{}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := g.Run(ctx, &counterState{}, nil)
	require.Error(t, err)
}
