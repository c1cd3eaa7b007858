// Package filestore is the file-backed statestore implementation: one JSON
// document per destination, written atomically.
package filestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dario.cat/mergo"

	"github.com/gjbm2/screen-machine/internal/cmn/fileutil"
	"github.com/gjbm2/screen-machine/internal/core"
	"github.com/gjbm2/screen-machine/internal/statestore"
)

var _ statestore.Store = (*fileStore)(nil)

type fileStore struct {
	baseDir string
	clock   func() time.Time
}

// Option defines functional options for the file store.
type Option func(*fileStore)

// WithClock replaces the wall clock, for tests.
func WithClock(clock func() time.Time) Option {
	return func(s *fileStore) {
		s.clock = clock
	}
}

// New creates a file-backed state store rooted at baseDir.
func New(baseDir string, opts ...Option) statestore.Store {
	s := &fileStore{baseDir: baseDir, clock: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *fileStore) path(dest string) string {
	return filepath.Join(s.baseDir, dest+".json")
}

func (s *fileStore) Load(_ context.Context, dest string) (*statestore.State, error) {
	state := statestore.NewState()
	if err := fileutil.ReadJSON(s.path(dest), state); err != nil {
		if os.IsNotExist(err) {
			return nil, statestore.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load state for %s: %w", dest, err)
	}
	if state.TriggerLog == nil {
		state.TriggerLog = map[string]time.Time{}
	}
	if state.EventsActive == nil {
		state.EventsActive = map[string][]*core.Event{}
	}
	return state, nil
}

func (s *fileStore) Save(_ context.Context, dest string, state *statestore.State) error {
	state.LastUpdated = s.clock()
	state.Normalize()
	if err := fileutil.WriteJSONAtomic(s.path(dest), state); err != nil {
		return fmt.Errorf("failed to save state for %s: %w", dest, err)
	}
	return nil
}

func (s *fileStore) Update(ctx context.Context, dest string, patch *statestore.State) (*statestore.State, error) {
	current, err := s.Load(ctx, dest)
	if err != nil {
		if err != statestore.ErrNotFound {
			return nil, err
		}
		current = statestore.NewState()
	}

	if patch != nil {
		if err := mergo.Merge(current, patch, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge state for %s: %w", dest, err)
		}
	}

	if err := s.Save(ctx, dest, current); err != nil {
		return nil, err
	}
	return current, nil
}

func (s *fileStore) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list state directory: %w", err)
	}

	var dests []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		dests = append(dests, strings.TrimSuffix(name, ".json"))
	}
	return dests, nil
}

func (s *fileStore) Remove(_ context.Context, dest string) error {
	if err := os.Remove(s.path(dest)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove state for %s: %w", dest, err)
	}
	return nil
}
