package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInit_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flowdeploy.log")
	if err := Init(path); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer Close()

	Info("deploying %d items", 3)
	Warn("slow instance %s", "nifi-1")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	if !strings.Contains(out, "deploying 3 items") {
		t.Errorf("expected info line, got %q", out)
	}
	if !strings.Contains(out, "level=warning") {
		t.Errorf("expected warning level, got %q", out)
	}
	if GetWriter() == nil {
		t.Error("expected writer")
	}
}

func TestInit_BadPath(t *testing.T) {
	if err := Init(filepath.Join(t.TempDir(), "missing", "x.log")); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer Close()

	if err := SetLevel("warn"); err != nil {
		t.Fatal(err)
	}
	defer SetLevel("info")

	Debug("hidden")
	Info("hidden too")
	Error("shown")

	if strings.Contains(buf.String(), "hidden") {
		t.Errorf("expected debug/info to be filtered, got %q", buf.String())
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("expected error line, got %q", buf.String())
	}

	if err := SetLevel("chatty"); err == nil {
		t.Error("expected error for unknown level")
	}
}
