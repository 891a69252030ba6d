package settings

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucasjlepore/fitview/options"
)

func TestFileStoreGetFallback(t *testing.T) {
	store, err := OpenFileStore(filepath.Join(t.TempDir(), "missing.toml"), nil)
	require.NoError(t, err)

	v, err := store.Get(LocalKey, "fallback")
	require.NoError(t, err)
	assert.Equal(t, "fallback", v)
}

func TestFileStoreSetWritesToml(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.toml")
	store, err := OpenFileStore(path, nil)
	require.NoError(t, err)

	require.NoError(t, store.Set(LocalKey, map[string]any{"merge_heart_rates": false}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[decoder_options]")
	assert.Contains(t, string(data), "merge_heart_rates = false")
}

func TestOpenFileStoreRejectsBadToml(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.toml")
	require.NoError(t, os.WriteFile(path, []byte("[decoder_options\nbroken"), 0o644))

	_, err := OpenFileStore(path, nil)
	assert.Error(t, err)
}

func TestOpenFileStoreRequiresPath(t *testing.T) {
	_, err := OpenFileStore("", nil)
	assert.Error(t, err)
}

func TestResetClearsFileOnDisk(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "settings.toml")
	require.NoError(t, os.WriteFile(path, []byte(`theme = "dark"

[decoder_options]
include_unknown_data = true
stale_option = true
`), 0o644))

	store, err := OpenFileStore(path, nil)
	require.NoError(t, err)
	g := NewGateway(store, nil)
	require.True(t, g.Persisted(ctx)[options.IncludeUnknownData])

	require.True(t, g.Reset(ctx).Success)
	assert.False(t, g.Persisted(ctx)[options.IncludeUnknownData])

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "include_unknown_data")
	assert.NotContains(t, string(data), "stale_option")
	assert.Contains(t, string(data), "dark", "other keys are kept")

	reopened, err := OpenFileStore(path, nil)
	require.NoError(t, err)
	res := NewGateway(reopened, nil).Resolve(ctx)
	assert.Equal(t, TierDefaults, res.Tier)
	assert.Equal(t, options.Defaults(), res.Options)
}

func TestFileStoreSetReplacesWholeKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")
	store, err := OpenFileStore(path, nil)
	require.NoError(t, err)

	require.NoError(t, store.Set(LocalKey, map[string]any{"merge_heart_rates": false, "expand_sub_fields": false}))
	require.NoError(t, store.Set(LocalKey, map[string]any{"merge_heart_rates": true}))

	reopened, err := OpenFileStore(path, nil)
	require.NoError(t, err)
	v, err := reopened.Get(LocalKey, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"merge_heart_rates": true}, v)
}

func TestFileStoreWatchReloadsExternalEdits(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "settings.toml")
	store, err := OpenFileStore(path, nil)
	require.NoError(t, err)
	g := NewGateway(store, nil)
	require.True(t, g.Update(ctx, map[string]any{options.IncludeUnknownData: false}).Success)
	require.False(t, g.Current(ctx)[options.IncludeUnknownData])

	changed := make(chan struct{}, 16)
	stop, err := store.Watch(func() {
		g.Invalidate()
		changed <- struct{}{}
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = stop() })

	require.NoError(t, os.WriteFile(path, []byte("[decoder_options]\ninclude_unknown_data = true\n"), 0o644))

	assert.Eventually(t, func() bool {
		return g.Current(ctx)[options.IncludeUnknownData]
	}, 5*time.Second, 20*time.Millisecond)
	assert.True(t, g.Persisted(ctx)[options.IncludeUnknownData])
	assert.NotEmpty(t, changed)

	require.NoError(t, stop())
	require.NoError(t, stop(), "stop is idempotent")
}
