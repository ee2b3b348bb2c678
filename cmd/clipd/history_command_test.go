package main

import (
	"path/filepath"
	"testing"

	"clipd/internal/testsupport"
)

func TestHistoryAfterRun(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMediaTools(600))
	configPath := writeTestConfig(t, cfg)

	source := filepath.Join(testsupport.BaseDir(cfg), "movie.mp4")
	testsupport.WriteFile(t, source, 4096)

	out, err := runCLI(t, configPath, "history", "--owner", "5")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "no history recorded")

	if _, err := runCLI(t, configPath, "run", source, "0:10-0:20", "--owner", "5"); err != nil {
		t.Fatalf("run: %v", err)
	}

	out, err = runCLI(t, configPath, "history", "--owner", "5")
	if err != nil {
		t.Fatalf("history after run: %v", err)
	}
	requireContains(t, out, "movie.mp4")
	requireContains(t, out, "clip")
}
