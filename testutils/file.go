// Package testutils contains helpers shared by the package tests: synthetic images and
// temporary files.
package testutils

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"go.viam.com/test"
)

// WriteJSONFile marshals v into a file named name inside a fresh temporary directory and returns
// its path.
func WriteJSONFile(t *testing.T, name string, v interface{}) string {
	t.Helper()
	data, err := json.MarshalIndent(v, "", "  ")
	test.That(t, err, test.ShouldBeNil)
	return WriteFile(t, name, data)
}

// WriteFile writes data into a file named name inside a fresh temporary directory and returns its
// path.
func WriteFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	test.That(t, os.WriteFile(path, data, 0o600), test.ShouldBeNil)
	return path
}
