package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// StateFile is the name of the client state file in the settings directory
const StateFile = "state.json"

// State is what the client remembers between runs
type State struct {
	// LastConversationID is the conversation the next chat continues
	LastConversationID string `json:"lastConversationId,omitempty"`
	Token              string `json:"token,omitempty"`
	Email              string `json:"email,omitempty"`
}

// StatePath returns the default state file location
func StatePath() string {
	return BuildSettingsPath(StateFile)
}

// LoadState reads the state file. A missing file is an empty state.
func LoadState(path string) (State, error) {
	var st State
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return st, nil
	}
	if err != nil {
		return st, fmt.Errorf("failed to read state: %w", err)
	}
	if len(data) == 0 {
		return st, nil
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return State{}, fmt.Errorf("failed to parse state %s: %w", path, err)
	}
	return st, nil
}

// UpdateState applies fn to the stored state under the file lock and
// writes the result back
func UpdateState(path string, fn func(*State)) (State, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return State{}, fmt.Errorf("failed to create state directory: %w", err)
	}

	var st State
	err := WithLock(path, DefaultLockConfig(), func() error {
		var err error
		st, err = LoadState(path)
		if err != nil {
			return err
		}
		fn(&st)

		data, err := json.MarshalIndent(st, "", "  ")
		if err != nil {
			return err
		}
		return writeAtomic(path, data, 0600)
	})
	return st, err
}
