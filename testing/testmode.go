// Package testing switches the process into test mode when imported, so
// binaries and bootstrap code skip network side effects under go test.
package testing

import (
	"os"
	"sync"

	"github.com/psychohelp/psychohelp/internal/shared"
)

var once sync.Once

// Enable sets the test mode flag. Importing the package calls it.
func Enable() {
	once.Do(func() {
		_ = os.Setenv(shared.TestModeEnv, "1")
	})
}

func init() {
	Enable()
}
