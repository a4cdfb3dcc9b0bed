//go:build integration

// Package containers starts throwaway infrastructure for integration tests.
// Every helper skips the test when no container runtime is reachable.
package containers

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
)

func skipWithoutDocker(t *testing.T) {
	t.Helper()
	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		t.Skip("container runtime not available, skipping integration test")
	}
	_ = provider.Close()
}

func terminate(t *testing.T, c testcontainers.Container) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := c.Terminate(ctx); err != nil {
		t.Logf("failed to terminate container: %v", err)
	}
}
