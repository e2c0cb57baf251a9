// Package testutil provides shared skip helpers for integration tests.
//
// Each helper calls t.Skip with a clear human-readable reason when the named
// prerequisite is absent, so integration tests remain runnable in partial
// environments without failing noisily.
package testutil

import (
	"os"
	"testing"
)

// ONNXRuntimePath locates an ONNX Runtime shared library and skips the test
// when none is available. It checks (in order): the ORT_LIBRARY_PATH env var,
// then the MELSYNTH_ORT_LIB env var, then common system library paths.
func ONNXRuntimePath(tb testing.TB) string {
	tb.Helper()

	for _, env := range []string{"ORT_LIBRARY_PATH", "MELSYNTH_ORT_LIB"} {
		p := os.Getenv(env)
		if p == "" {
			continue
		}

		if _, err := os.Stat(p); err == nil {
			return p
		}

		tb.Skipf("ONNX Runtime library not found at %s=%q", env, p)
	}

	candidates := []string{
		"/usr/lib/libonnxruntime.so",
		"/usr/local/lib/libonnxruntime.so",
		"/usr/lib/x86_64-linux-gnu/libonnxruntime.so",
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	tb.Skip("ONNX Runtime shared library not found; set ORT_LIBRARY_PATH or MELSYNTH_ORT_LIB")

	return ""
}

// RequireFile skips the test when path does not exist.
func RequireFile(tb testing.TB, path string) {
	tb.Helper()

	if _, err := os.Stat(path); err != nil {
		tb.Skipf("required file %q not available: %v", path, err)
	}
}
