package config

import (
	"os"
	"path/filepath"
	"sync"
)

const (
	envHome    = "FLOWDEPLOY_HOME"
	homeFolder = ".flowdeploy"
)

var (
	homeOnce sync.Once
	homeDir  string
)

// GetHome returns the directory flowdeploy keeps reports and logs in.
//
// Resolution order:
//  1. $FLOWDEPLOY_HOME
//  2. ~/.flowdeploy
//  3. ./.flowdeploy
func GetHome() string {
	homeOnce.Do(func() {
		homeDir = resolveHome()
	})
	return homeDir
}

// GetLogDir returns <home>/logs. Commands that write no report log here.
func GetLogDir() string {
	return filepath.Join(GetHome(), "logs")
}

// GetReportsDir returns <home>/reports, the parent of per-run report
// directories when no output is configured.
func GetReportsDir() string {
	return filepath.Join(GetHome(), "reports")
}

func resolveHome() string {
	if env := os.Getenv(envHome); env != "" {
		return env
	}
	if user, err := os.UserHomeDir(); err == nil && user != "" {
		return filepath.Join(user, homeFolder)
	}
	return homeFolder
}

// ResetHome resets the cached home directory (for testing).
func ResetHome() {
	homeOnce = sync.Once{}
	homeDir = ""
}
