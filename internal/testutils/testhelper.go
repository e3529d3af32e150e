package testutils

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
)

// Well-known test targets, written the way they appear on device labels.
const (
	TargetA = "ED:0A:39:F0:0E:1C"
	TargetB = "D9:42:7E:11:5A:C3"

	TargetServiceUUID = "12345678-1234-5678-1234-56789abcdef0"
	TargetValueUUID   = "12345678-1234-5678-1234-56789abcdef1"
)

type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger
}

// NewTestHelper creates a test helper with a debug logger.
func NewTestHelper(t *testing.T) *TestHelper {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel) // enable debug logs to track execution flow
	return &TestHelper{
		T:      t,
		Logger: logger,
	}
}

// LoadFixture reads a file relative to the module root.
func LoadFixture(relPath string) ([]byte, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}

	root := wd
	for {
		if _, err := os.Stat(filepath.Join(root, "go.mod")); err == nil {
			break
		}
		parent := filepath.Dir(root)
		if parent == root {
			return nil, fmt.Errorf("could not find project root (go.mod not found)")
		}
		root = parent
	}

	data, err := os.ReadFile(filepath.Join(root, relPath))
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture %s: %w", relPath, err)
	}
	return data, nil
}
