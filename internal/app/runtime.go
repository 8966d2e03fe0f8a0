package app

import "os"

// TestModeEnv, when set to "1", relaxes production-only checks and keeps the
// worker from connecting.
const TestModeEnv = "TAGBOARD_TEST_MODE"

// InTestMode reports whether TestModeEnv is set.
func InTestMode() bool {
	return os.Getenv(TestModeEnv) == "1"
}
