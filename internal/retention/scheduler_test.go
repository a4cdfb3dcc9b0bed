package retention

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRunner struct{ runs int }

func (c *countingRunner) Run(context.Context) Report {
	c.runs++
	return Report{Errors: []string{"one failure"}}
}

func TestNewSchedulerRejectsBadSpec(t *testing.T) {
	_, err := NewScheduler(context.Background(), "every tuesday", &countingRunner{}, slog.New(slog.DiscardHandler))
	require.Error(t, err)
}

func TestSchedulerTickRunsSweep(t *testing.T) {
	runner := &countingRunner{}
	s, err := NewScheduler(context.Background(), "@daily", runner, slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	s.tick()
	assert.Equal(t, 1, runner.runs)

	s.Start()
	<-s.Stop().Done()
}
