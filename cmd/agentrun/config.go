package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// runConfig carries the flags and environment-derived settings shared by
// the chat, watch, and control subcommands: one small config struct
// resolved once in each command's RunE rather than a package-level
// global.
type runConfig struct {
	Provider  string // "anthropic" or "openai"
	Model     string
	Workspace string
	Profile   string // tool policy profile: coding/readonly/full/minimal
	StateDir  string // holds the watch-run sqlite db and control certs
}

// defaultStateDir returns ~/.agentrun (".agentrun" if the home directory
// is unknown); it does not create the directory.
func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".agentrun"
	}
	return filepath.Join(home, ".agentrun")
}

func resolveWorkspace(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("resolve workspace: %w", err)
		}
		return wd, nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve workspace %q: %w", path, err)
	}
	return abs, nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
