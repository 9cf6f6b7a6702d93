package bootstrap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunExecutesInPriorityOrder(t *testing.T) {
	var order []string
	s := NewSequence()
	s.Add("third", 3, func(c *Context) error { order = append(order, "third"); return nil })
	s.Add("first", 1, func(c *Context) error { order = append(order, "first"); return nil })
	s.Add("second", 2, func(c *Context) error { order = append(order, "second"); return nil })

	require.NoError(t, s.Run(&Context{}))
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestRunSkipsDisabledHook(t *testing.T) {
	var ran bool
	s := NewSequence()
	s.Add("skip-me", 1, func(c *Context) error { ran = true; return nil }).EnabledIf(func(c *Context) bool { return false })

	require.NoError(t, s.Run(&Context{}))
	assert.False(t, ran)
}

func TestRunFailFastAbortsSequence(t *testing.T) {
	var ranSecond bool
	s := NewSequence()
	s.Add("boom", 1, func(c *Context) error { return assertErr })
	s.Add("after", 2, func(c *Context) error { ranSecond = true; return nil })

	err := s.Run(&Context{})
	require.Error(t, err)
	assert.False(t, ranSecond)
}

func TestRunLogAndContinueProceedsPastError(t *testing.T) {
	var ranSecond bool
	s := NewSequence()
	s.Add("boom", 1, func(c *Context) error { return assertErr }).OnError(LogAndContinue)
	s.Add("after", 2, func(c *Context) error { ranSecond = true; return nil })

	require.NoError(t, s.Run(&Context{}))
	assert.True(t, ranSecond)
}

var assertErr = errBoom{}

type errBoom struct{}

func (errBoom) Error() string { return "boom" }
