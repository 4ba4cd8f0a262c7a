package tracker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTrackerFile(t *testing.T, dir, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
}

func TestHighestNoMatches(t *testing.T) {
	dir := t.TempDir()
	p := New(dir, "i22")
	_, found, err := p.Highest()
	require.NoError(t, err)
	assert.False(t, found)
}

func TestHighestIgnoresNonMatching(t *testing.T) {
	dir := t.TempDir()
	writeTrackerFile(t, dir, "readme.txt")
	writeTrackerFile(t, dir, "01.i22")  // leading zero: not a match
	writeTrackerFile(t, dir, "5.i23")   // wrong extension
	writeTrackerFile(t, dir, "10.i22")
	writeTrackerFile(t, dir, "3.i22")

	p := New(dir, "i22")
	n, found, err := p.Highest()
	require.NoError(t, err)
	require.True(t, found)
	assert.EqualValues(t, 10, n)
}

func TestHighestAllowsZero(t *testing.T) {
	dir := t.TempDir()
	writeTrackerFile(t, dir, "0.i22")

	p := New(dir, "i22")
	n, found, err := p.Highest()
	require.NoError(t, err)
	require.True(t, found)
	assert.EqualValues(t, 0, n)
}

func TestHighestMissingDirectory(t *testing.T) {
	p := New(filepath.Join(t.TempDir(), "does-not-exist"), "i22")
	_, _, err := p.Highest()
	require.Error(t, err)
}

func TestClaimCreatesFile(t *testing.T) {
	dir := t.TempDir()
	p := New(dir, "i22")
	require.NoError(t, p.Claim(21))

	_, err := os.Stat(filepath.Join(dir, "21.i22"))
	require.NoError(t, err)
}

func TestClaimAlreadyClaimed(t *testing.T) {
	dir := t.TempDir()
	p := New(dir, "i22")
	require.NoError(t, p.Claim(5))

	err := p.Claim(5)
	require.ErrorIs(t, err, ErrAlreadyClaimed)
}

func TestNotConfigured(t *testing.T) {
	p := New("", "i22")
	_, _, err := p.Highest()
	require.ErrorIs(t, err, ErrNotConfigured)
	require.ErrorIs(t, p.Claim(1), ErrNotConfigured)
}
