package deps

import (
	"os"
	"path/filepath"
	"testing"

	"clipd/internal/config"
)

func TestCheckResolvesAndFlagsMissing(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "ffmpeg")
	if err := os.WriteFile(present, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}

	results := Check([]Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Unset", Command: "  "},
	})
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	if !results[0].Available {
		t.Fatalf("expected stub binary to be available: %#v", results[0])
	}
	if results[0].Command != present {
		t.Fatalf("expected resolved path %s, got %s", present, results[0].Command)
	}

	if results[1].Available {
		t.Fatal("expected missing binary to be unavailable")
	}
	if results[1].Detail == "" {
		t.Fatal("expected detail for missing binary")
	}

	if results[2].Available || results[2].Detail != "command not configured" {
		t.Fatalf("unexpected status for unset command: %#v", results[2])
	}
}

func TestRequirementsCoverConfiguredTools(t *testing.T) {
	cfg := config.Default()
	cfg.FFmpeg.Binary = "/opt/ffmpeg/bin/ffmpeg"
	cfg.FFmpeg.ProbeBinary = "/opt/ffmpeg/bin/ffprobe"

	reqs := Requirements(&cfg)
	if len(reqs) != 2 {
		t.Fatalf("expected 2 requirements, got %d", len(reqs))
	}
	if reqs[0].Command != cfg.FFmpeg.Binary || reqs[1].Command != cfg.FFmpeg.ProbeBinary {
		t.Fatalf("requirements do not match configuration: %#v", reqs)
	}
}
