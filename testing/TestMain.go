// Package testing prepares the process environment for package tests. Import
// it for its side effects.
package testing

import "os"

func init() {
	_ = os.Setenv("TAGBOARD_TEST_MODE", "1")
	if _, ok := os.LookupEnv("SESSION_SECRET"); !ok {
		_ = os.Setenv("SESSION_SECRET", "test-session-secret-0123456789")
	}
}
