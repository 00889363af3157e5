// Package testutil provides utilities for testing storeagent in isolation.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// SetupTestEnv points the storeagent config and cache directories at fresh
// temp directories. The testing framework removes them afterwards.
//
// It returns the root temp directory.
func SetupTestEnv(t *testing.T) string {
	t.Helper()

	tmpDir := t.TempDir()

	t.Setenv("STOREAGENT_CONFIG_DIR", filepath.Join(tmpDir, "config"))
	t.Setenv("STOREAGENT_CACHE_DIR", filepath.Join(tmpDir, "cache"))

	// Mark as test mode
	t.Setenv("STOREAGENT_TEST_MODE", "1")

	dirs := []string{
		filepath.Join(tmpDir, "config"),
		filepath.Join(tmpDir, "cache"),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			t.Fatalf("failed to create test directory %s: %v", dir, err)
		}
	}

	return tmpDir
}
