package config

import (
	"path/filepath"
	"testing"
)

func TestGetHome_EnvVar(t *testing.T) {
	ResetHome()
	t.Setenv("FLOWDEPLOY_HOME", "/custom/path")

	if got := GetHome(); got != "/custom/path" {
		t.Errorf("GetHome() = %q, want %q", got, "/custom/path")
	}
}

func TestGetHome_UserHome(t *testing.T) {
	ResetHome()
	user := t.TempDir()
	t.Setenv("FLOWDEPLOY_HOME", "")
	t.Setenv("HOME", user)

	want := filepath.Join(user, ".flowdeploy")
	if got := GetHome(); got != want {
		t.Errorf("GetHome() = %q, want %q", got, want)
	}
}

func TestGetHome_Cached(t *testing.T) {
	ResetHome()
	t.Setenv("FLOWDEPLOY_HOME", "/first")

	first := GetHome()

	// Change env, should NOT affect cached value
	t.Setenv("FLOWDEPLOY_HOME", "/second")
	second := GetHome()

	if first != second {
		t.Errorf("GetHome() not cached: first=%q, second=%q", first, second)
	}
}

func TestGetLogDir(t *testing.T) {
	ResetHome()
	t.Setenv("FLOWDEPLOY_HOME", "/test/home")

	got := GetLogDir()
	want := filepath.Join("/test/home", "logs")
	if got != want {
		t.Errorf("GetLogDir() = %q, want %q", got, want)
	}
}

func TestGetReportsDir(t *testing.T) {
	ResetHome()
	t.Setenv("FLOWDEPLOY_HOME", "/test/home")

	got := GetReportsDir()
	want := filepath.Join("/test/home", "reports")
	if got != want {
		t.Errorf("GetReportsDir() = %q, want %q", got, want)
	}
}
