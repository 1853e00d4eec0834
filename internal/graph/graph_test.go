package graph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_TopologicalOrder(t *testing.T) {
	g, err := New([]Task{
		{Name: "c", Deps: []string{"a", "b"}},
		{Name: "b", Deps: []string{"a"}},
		{Name: "a"},
		{Name: "d"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c", "d"}, g.TopologicalOrder())
	assert.Equal(t, []string{"b", "c"}, g.Dependents("a"))
	assert.Equal(t, 4, g.Len())

	depth, ok := g.Depth("c")
	require.True(t, ok)
	assert.Equal(t, 2, depth)
}

func TestNew_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		tasks []Task
		kind  error
	}{
		{"empty", nil, ErrInvalidGraph},
		{"empty name", []Task{{Name: ""}}, ErrInvalidGraph},
		{"duplicate", []Task{{Name: "a"}, {Name: "a"}}, ErrInvalidGraph},
		{"unknown dep", []Task{{Name: "a", Deps: []string{"x"}}}, ErrInvalidGraph},
		{"duplicate dep", []Task{{Name: "a"}, {Name: "b", Deps: []string{"a", "a"}}}, ErrInvalidGraph},
		{"self loop", []Task{{Name: "a", Deps: []string{"a"}}}, ErrInvalidGraph},
		{"cycle", []Task{
			{Name: "a", Deps: []string{"c"}},
			{Name: "b", Deps: []string{"a"}},
			{Name: "c", Deps: []string{"b"}},
		}, ErrCycleFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.tasks)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.kind))

			var graphErr *GraphError
			assert.True(t, errors.As(err, &graphErr))
		})
	}
}

func TestNew_CycleMessageIsDeterministic(t *testing.T) {
	tasks := []Task{
		{Name: "root"},
		{Name: "a", Deps: []string{"root", "c"}},
		{Name: "b", Deps: []string{"a"}},
		{Name: "c", Deps: []string{"b"}},
	}
	_, err := New(tasks)
	require.Error(t, err)
	assert.Equal(t, "cycle detected: cycle: a -> c -> b -> a", err.Error())
}

func TestPrune(t *testing.T) {
	g, err := New([]Task{
		{Name: "a"},
		{Name: "b", Deps: []string{"a"}},
		{Name: "unrelated"},
		{Name: "top", Deps: []string{"b"}},
	})
	require.NoError(t, err)

	pruned, err := g.Prune("top")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "top"}, pruned.TopologicalOrder())

	_, err = g.Prune("missing")
	assert.True(t, errors.Is(err, ErrInvalidGraph))
}
