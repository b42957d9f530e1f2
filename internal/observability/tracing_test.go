package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/crypdoebucks/internal/config"
)

func TestSetupTracing_NoopWithoutEndpoint(t *testing.T) {
	shutdown, err := SetupTracing(context.Background(), "bucksd", config.TracingConfig{})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestSetupTracing_UnreachableCollector(t *testing.T) {
	// 192.0.2.0/24 is reserved for documentation; nothing is ever exported.
	shutdown, err := SetupTracing(context.Background(), "bucksd", config.TracingConfig{
		Endpoint:    "http://192.0.2.1:4318",
		SampleRatio: 1,
	})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
