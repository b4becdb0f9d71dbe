package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuvan0/tuvan/internal/log"
)

func TestSetupDefaultAgentHost(t *testing.T) {
	cfg := Config{
		Environment: "test",
		ServiceName: "tuvan-test",
	}

	ctx := context.Background()
	shutdown, err := Setup(ctx, cfg, log.NewNop())
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	assert.NoError(t, shutdown(ctx))
}

func TestSetupCustomAgentHost(t *testing.T) {
	cfg := Config{
		AgentHost:   "collector.internal:4318",
		Environment: "staging",
		ServiceName: "tuvan",
	}

	ctx := context.Background()
	shutdown, err := Setup(ctx, cfg, log.NewNop())
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	// The exporter is lazy; an unreachable host must not fail setup.
	assert.NoError(t, shutdown(ctx))
}
