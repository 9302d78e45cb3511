package dashclient

import (
	"context"
	"fmt"
	"sync"
)

// Themes accepted by the preference store and the chart renderer.
const (
	ThemeDark  = "dark"
	ThemeLight = "light"
)

// Preferences captures per-user UI adjustments that survive navigation:
// the theme toggle and the last upload the user was looking at.
type Preferences struct {
	Theme        string
	LastUploadID int
}

// PreferenceStore returns UI preferences per user.
type PreferenceStore interface {
	Preferences(ctx context.Context, username string) (Preferences, error)
	SavePreferences(ctx context.Context, username string, prefs Preferences) error
}

// InMemoryPreferenceStore provides a concurrency-safe default store.
type InMemoryPreferenceStore struct {
	mu   sync.RWMutex
	data map[string]Preferences
}

// NewInMemoryPreferenceStore creates an empty preference store.
func NewInMemoryPreferenceStore() *InMemoryPreferenceStore {
	return &InMemoryPreferenceStore{data: make(map[string]Preferences)}
}

// Preferences returns stored preferences or defaults.
func (s *InMemoryPreferenceStore) Preferences(_ context.Context, username string) (Preferences, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if prefs, ok := s.data[username]; ok {
		if prefs.Theme == "" {
			prefs.Theme = ThemeDark
		}
		return prefs, nil
	}
	return Preferences{Theme: ThemeDark}, nil
}

// SavePreferences persists preferences for a user.
func (s *InMemoryPreferenceStore) SavePreferences(_ context.Context, username string, prefs Preferences) error {
	if username == "" {
		return fmt.Errorf("dashclient: preference store requires a username")
	}
	if prefs.Theme == "" {
		prefs.Theme = ThemeDark
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[username] = prefs
	return nil
}
