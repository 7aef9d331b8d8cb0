package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// watcherFixture points HOME and the working directory at temp dirs so the
// user config is the only file the loader can find, then writes it.
func watcherFixture(t *testing.T, content string) string {
	t.Helper()

	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)
	t.Chdir(t.TempDir())
	Reset()
	t.Cleanup(Reset)

	userDir := filepath.Join(tmpHome, ".citegraph")
	require.NoError(t, os.MkdirAll(userDir, DefaultDirPermissions))

	configPath := filepath.Join(userDir, "citegraph.toml")
	require.NoError(t, os.WriteFile(configPath, []byte(content), DefaultFilePermissions))
	return configPath
}

func TestConfigWatcherReloadsOnChange(t *testing.T) {
	configPath := watcherFixture(t, "[load]\nchunk_size = 400\n")

	cw, err := NewConfigWatcher(configPath)
	require.NoError(t, err)
	defer cw.Stop()

	reloaded := make(chan *Config, 1)
	cw.OnReload(func(cfg *Config) error {
		select {
		case reloaded <- cfg:
		default:
		}
		return nil
	})
	cw.Start()

	require.NoError(t, os.WriteFile(configPath, []byte("[load]\nchunk_size = 900\n"), DefaultFilePermissions))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, 900, cfg.Load.ChunkSize)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher never delivered the reloaded config")
	}
}

func TestConfigWatcherIgnoresOwnWrite(t *testing.T) {
	configPath := watcherFixture(t, "[load]\nchunk_size = 400\n")

	cw, err := NewConfigWatcher(configPath)
	require.NoError(t, err)
	defer cw.Stop()

	reloaded := make(chan *Config, 1)
	cw.OnReload(func(cfg *Config) error {
		select {
		case reloaded <- cfg:
		default:
		}
		return nil
	})
	cw.Start()

	// The write path announces itself before touching the file, so a
	// persisted `config set` must not bounce back through the callbacks.
	cw.MarkOwnWrite()
	require.NoError(t, os.WriteFile(configPath, []byte("[load]\nchunk_size = 900\n"), DefaultFilePermissions))

	select {
	case <-reloaded:
		t.Fatal("own write must not trigger a reload")
	case <-time.After(1200 * time.Millisecond):
	}

	// The flag is one-shot: the next external write reloads normally.
	require.NoError(t, os.WriteFile(configPath, []byte("[load]\nchunk_size = 700\n"), DefaultFilePermissions))
	select {
	case cfg := <-reloaded:
		assert.Equal(t, 700, cfg.Load.ChunkSize)
	case <-time.After(5 * time.Second):
		t.Fatal("external write after own write never reloaded")
	}
}

func TestConfigWatcherDebouncesRapidWrites(t *testing.T) {
	configPath := watcherFixture(t, "[load]\nchunk_size = 400\n")

	cw, err := NewConfigWatcher(configPath)
	require.NoError(t, err)
	defer cw.Stop()

	reloads := make(chan *Config, 8)
	cw.OnReload(func(cfg *Config) error {
		reloads <- cfg
		return nil
	})
	cw.Start()

	for _, size := range []string{"500", "600", "700"} {
		require.NoError(t, os.WriteFile(configPath, []byte("[load]\nchunk_size = "+size+"\n"), DefaultFilePermissions))
		time.Sleep(50 * time.Millisecond)
	}

	select {
	case cfg := <-reloads:
		// One coalesced reload carrying the final write.
		assert.Equal(t, 700, cfg.Load.ChunkSize)
	case <-time.After(5 * time.Second):
		t.Fatal("debounced reload never fired")
	}

	select {
	case <-reloads:
		t.Fatal("rapid writes must coalesce into a single reload")
	case <-time.After(1200 * time.Millisecond):
	}
}

func TestIsBackupFile(t *testing.T) {
	assert.True(t, isBackupFile("/home/x/.citegraph/citegraph.toml.back1"))
	assert.True(t, isBackupFile("citegraph.toml.back3"))
	assert.False(t, isBackupFile("citegraph.toml"))
}

func TestActiveConfigFile(t *testing.T) {
	configPath := watcherFixture(t, "[load]\nchunk_size = 400\n")
	assert.Equal(t, configPath, ActiveConfigFile())

	// A project config closer to the working directory wins.
	projectPath := filepath.Join(".", "citegraph.toml")
	require.NoError(t, os.WriteFile(projectPath, []byte("[load]\nchunk_size = 100\n"), DefaultFilePermissions))
	abs, err := filepath.Abs(projectPath)
	require.NoError(t, err)
	resolved, err := filepath.EvalSymlinks(ActiveConfigFile())
	require.NoError(t, err)
	expected, err := filepath.EvalSymlinks(abs)
	require.NoError(t, err)
	assert.Equal(t, expected, resolved)
}
