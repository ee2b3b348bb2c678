package main

import (
	"path/filepath"
	"testing"

	"clipd/internal/testsupport"
)

func TestRunCommandProducesClips(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMediaTools(600))
	configPath := writeTestConfig(t, cfg)

	source := filepath.Join(testsupport.BaseDir(cfg), "movie.mp4")
	testsupport.WriteFile(t, source, 4096)

	out, err := runCLI(t, configPath, "run", source, "0:10-0:20", "--owner", "7")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	requireContains(t, out, "Completed")
	requireContains(t, out, "Clip")
}

func TestRunCommandReportsParseErrors(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMediaTools(600))
	configPath := writeTestConfig(t, cfg)

	source := filepath.Join(testsupport.BaseDir(cfg), "movie.mp4")
	testsupport.WriteFile(t, source, 4096)

	_, err := runCLI(t, configPath, "run", source, "not-a-range")
	if err == nil {
		t.Fatal("expected parse failure")
	}
	requireContains(t, err.Error(), "not-a-range")
}

func TestRunCommandRejectsBadParamFlag(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMediaTools(600))
	configPath := writeTestConfig(t, cfg)

	source := filepath.Join(testsupport.BaseDir(cfg), "movie.mp4")
	testsupport.WriteFile(t, source, 4096)

	_, err := runCLI(t, configPath, "run", source, "0:10-0:20", "--param", "no-equals-sign")
	if err == nil {
		t.Fatal("expected --param validation failure")
	}
	requireContains(t, err.Error(), "key=value")
}

func TestRunCommandAppliesTemplate(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMediaTools(600))
	configPath := writeTestConfig(t, cfg)

	source := filepath.Join(testsupport.BaseDir(cfg), "movie.mp4")
	testsupport.WriteFile(t, source, 4096)

	out, err := runCLI(t, configPath, "template", "save", "small", "--owner", "7", "--param", "scale=640:-2")
	if err != nil {
		t.Fatalf("template save: %v", err)
	}
	requireContains(t, out, `saved template "small"`)

	out, err = runCLI(t, configPath, "run", source, "0:10-0:20", "--owner", "7", "--template", "small")
	if err != nil {
		t.Fatalf("run with template: %v", err)
	}
	requireContains(t, out, "Completed")

	_, err = runCLI(t, configPath, "run", source, "0:10-0:20", "--owner", "7", "--template", "missing")
	if err == nil {
		t.Fatal("expected unknown template error")
	}
	requireContains(t, err.Error(), "not found")
}
