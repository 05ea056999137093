package options

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Store holds the process-lifetime options. Reads return value copies,
// so callers can never mutate the stored tree in place.
type Store struct {
	mu      sync.RWMutex
	current Options
}

// NewStore returns a store initialized to the built-in defaults.
func NewStore() *Store {
	return &Store{current: Defaults()}
}

// Current returns the stored options.
func (s *Store) Current() Options {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Apply merges a patch into the stored options and returns the result.
func (s *Store) Apply(p Patch) Options {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = Merge(s.current, p)
	return s.current
}

// Reset restores the built-in defaults.
func (s *Store) Reset() Options {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = Defaults()
	return s.current
}

// SetGain updates only the live gain. Negative values mute.
func (s *Store) SetGain(gain float64) Options {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gain < 0 {
		gain = 0
	}
	s.current.Gain = gain
	return s.current
}

// LoadFile merges options from a YAML file into the store. A missing
// file is not an error; the store keeps its current values.
func (s *Store) LoadFile(path string) error {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("reading options file: %w", err)
	}

	patch, err := PatchFromMap(v.AllSettings())
	if err != nil {
		return fmt.Errorf("decoding options file: %w", err)
	}
	s.Apply(patch)
	return nil
}

// SaveFile writes the current options as YAML, creating the parent
// directory if needed.
func (s *Store) SaveFile(path string) error {
	data, err := yaml.Marshal(s.Current())
	if err != nil {
		return fmt.Errorf("encoding options: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating options directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing options file: %w", err)
	}
	return nil
}

// DefaultPath returns the per-user options file location.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "voicecapture", "config.yaml"), nil
}
