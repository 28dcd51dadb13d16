package app

import (
	"os"
	"strconv"
	"sync/atomic"
)

const testModeEnv = "PANEL_TEST_MODE"

var (
	testModeLoaded atomic.Bool
	testModeFlag   atomic.Bool
)

// InTestMode reports whether the binaries should skip connecting to Postgres,
// Redis and object storage. The environment is read on first use.
func InTestMode() bool {
	if !testModeLoaded.Load() {
		RefreshTestMode()
	}
	return testModeFlag.Load()
}

// RefreshTestMode re-reads PANEL_TEST_MODE after environment changes.
func RefreshTestMode() {
	enabled, _ := strconv.ParseBool(os.Getenv(testModeEnv))
	testModeFlag.Store(enabled)
	testModeLoaded.Store(true)
}
