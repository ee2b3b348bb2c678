package main

import (
	"path/filepath"
	"testing"

	"clipd/internal/testsupport"
)

func TestOwnerShowAndPadding(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMediaTools(600))
	configPath := writeTestConfig(t, cfg)

	out, err := runCLI(t, configPath, "owner", "show", "--owner", "9")
	if err != nil {
		t.Fatalf("owner show: %v", err)
	}
	requireContains(t, out, "no stored settings")

	// A run creates the owner row with default padding.
	source := filepath.Join(testsupport.BaseDir(cfg), "movie.mp4")
	testsupport.WriteFile(t, source, 4096)
	if _, err := runCLI(t, configPath, "run", source, "0:10-0:20", "--owner", "9"); err != nil {
		t.Fatalf("run: %v", err)
	}

	if _, err := runCLI(t, configPath, "owner", "padding", "--owner", "9",
		"--start", "0.5", "--end", "1"); err != nil {
		t.Fatalf("owner padding: %v", err)
	}

	out, err = runCLI(t, configPath, "owner", "show", "--owner", "9")
	if err != nil {
		t.Fatalf("owner show after padding: %v", err)
	}
	requireContains(t, out, "500ms")
	requireContains(t, out, "1s")
}

func TestOwnerPaddingUnknownOwner(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	configPath := writeTestConfig(t, cfg)

	if _, err := runCLI(t, configPath, "owner", "padding", "--owner", "404"); err == nil {
		t.Fatal("expected error setting padding for unknown owner")
	}
}
