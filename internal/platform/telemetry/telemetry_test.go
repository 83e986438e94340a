package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustubh-k/Synk-App/internal/config"
)

func TestInitTelemetry_NoAddressIsNoop(t *testing.T) {
	cfg := config.Config{
		Service: &config.ServiceConfig{Name: "synk-test"},
		Tracer:  &config.TracerConfig{},
	}
	shutdown, err := InitTelemetry(context.Background(), cfg, "i-1")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
