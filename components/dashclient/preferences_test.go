package dashclient

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreferencesDefaultToDarkTheme(t *testing.T) {
	store := NewInMemoryPreferenceStore()
	prefs, err := store.Preferences(context.Background(), "ada")
	require.NoError(t, err)
	assert.Equal(t, ThemeDark, prefs.Theme)
	assert.Zero(t, prefs.LastUploadID)
}

func TestPreferencesRoundTrip(t *testing.T) {
	store := NewInMemoryPreferenceStore()
	ctx := context.Background()

	require.NoError(t, store.SavePreferences(ctx, "ada", Preferences{Theme: ThemeLight, LastUploadID: 4}))

	prefs, err := store.Preferences(ctx, "ada")
	require.NoError(t, err)
	assert.Equal(t, ThemeLight, prefs.Theme)
	assert.Equal(t, 4, prefs.LastUploadID)

	// Another user is unaffected.
	other, err := store.Preferences(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, ThemeDark, other.Theme)
}

func TestPreferencesRequireUsername(t *testing.T) {
	store := NewInMemoryPreferenceStore()
	require.Error(t, store.SavePreferences(context.Background(), "", Preferences{}))
}
