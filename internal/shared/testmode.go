package shared

import "os"

// TestModeEnv is set to "1" by importing the module's testing package.
const TestModeEnv = "PSYCHOHELP_TEST_MODE"

// InTestMode reports whether binaries should return before opening any
// connection.
func InTestMode() bool {
	return os.Getenv(TestModeEnv) == "1"
}
