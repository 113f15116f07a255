package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeBlake3Hash(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o600))

	h1, err := ComputeBlake3Hash(path)
	require.NoError(t, err)
	assert.Len(t, h1, 64)

	require.NoError(t, VerifyFileHash(path, h1))

	require.NoError(t, os.WriteFile(path, []byte("hello!"), 0o600))
	err = VerifyFileHash(path, h1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hash mismatch for f.txt")
}

func TestLockThenLoad(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, minimalYAML)

	report, err := Lock(dir)
	require.NoError(t, err)
	assert.Equal(t, path, report.ConfigPath)
	assert.True(t, IsLocked(path))

	manifest, err := LoadChecksums(dir)
	require.NoError(t, err)
	assert.Equal(t, report.Hash, manifest.Hashes[ConfigFileName])

	_, err = Load(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(minimalYAML+"\n# edited\n"), 0o600))
	_, err = Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config verification failed")
}

func TestLoadChecksumsErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadChecksums(dir)
	assert.ErrorIs(t, err, errNoChecksums)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ChecksumFile), []byte("version: 9\n"), 0o600))
	_, err = LoadChecksums(dir)
	assert.EqualError(t, err, "unsupported checksums version: 9")
}

func TestLockedManifestMissingEntry(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, minimalYAML)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ChecksumFile), []byte("version: 1\nhashes: {}\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no hash")
}
