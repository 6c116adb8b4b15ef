package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlacklist(t *testing.T) {
	blacklist := NewBlacklist([]string{" cam ", "", "TeleSync"})
	assert.Equal(t, 2, blacklist.Len())

	matched, term := blacklist.IsBlacklisted("Movie.2023.CAM.x264")
	assert.True(t, matched)
	assert.Equal(t, "cam", term)

	matched, term = blacklist.IsBlacklisted("Movie.2023.TELESYNC")
	assert.True(t, matched)
	assert.Equal(t, "TeleSync", term)

	matched, _ = blacklist.IsBlacklisted("Movie.2023.1080p.WEB")
	assert.False(t, matched)
}

func TestNilBlacklist(t *testing.T) {
	var blacklist *Blacklist
	assert.Equal(t, 0, blacklist.Len())
	matched, _ := blacklist.IsBlacklisted("anything")
	assert.False(t, matched)
}

func TestLoadBlacklist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blacklist.txt")
	require.NoError(t, os.WriteFile(path, []byte("# release groups\nyify\n\n  hdcam  \n"), 0644))

	blacklist, err := LoadBlacklist(path)
	require.NoError(t, err)
	assert.Equal(t, 2, blacklist.Len())

	matched, term := blacklist.IsBlacklisted("Movie.HDCAM.mkv")
	assert.True(t, matched)
	assert.Equal(t, "hdcam", term)
}

func TestLoadBlacklistMissingFile(t *testing.T) {
	blacklist, err := LoadBlacklist(filepath.Join(t.TempDir(), "missing.txt"))
	require.NoError(t, err)
	assert.Equal(t, 0, blacklist.Len())
}
