// ABOUTME: Local console state persisted between runs as TOML
// ABOUTME: Remembers the active conversation so chat resumes where it left off

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// consoleState is what fold-console remembers between invocations
type consoleState struct {
	ActiveConversation string `toml:"active_conversation"`
}

// loadState reads the state file. A missing file is a fresh start, not an
// error.
func loadState(path string) (*consoleState, error) {
	var st consoleState
	if _, err := toml.DecodeFile(path, &st); err != nil {
		if os.IsNotExist(err) {
			return &consoleState{}, nil
		}
		return nil, fmt.Errorf("reading state file: %w", err)
	}
	return &st, nil
}

// saveState writes the state file, creating parent directories as needed
func saveState(path string, st *consoleState) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating state file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(st); err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}
	return nil
}
