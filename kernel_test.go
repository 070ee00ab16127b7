package perfspan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/blang/semver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestParseRelease(t *testing.T) {
	tests := map[string]string{
		"5.15.0-91-generic":          "5.15.0",
		"3.10.0-1160.el7.x86_64":     "3.10.0",
		"6.18.44-fc-v139":            "6.18.44",
		"4.19":                       "4.19.0",
		"6.1.0+":                     "6.1.0",
		"3.14.0-rc1-custom_build_77": "3.14.0",
	}
	for release, want := range tests {
		v, err := parseRelease(release)
		require.NoError(t, err, release)
		assert.Equal(t, semver.MustParse(want), v, release)
	}

	_, err := parseRelease("garbage")
	assert.Error(t, err)
}

func TestCloexecGate(t *testing.T) {
	old, err := parseRelease("3.13.11-generic")
	require.NoError(t, err)
	assert.False(t, old.GTE(cloexecVersion))

	v, err := parseRelease("3.14.0-rc1")
	require.NoError(t, err)
	assert.True(t, v.GTE(cloexecVersion))
}

func TestKernelVersion(t *testing.T) {
	v, err := KernelVersion()
	require.NoError(t, err)
	assert.NotZero(t, v.Major)
}

func TestAnnotateOpenErr(t *testing.T) {
	old := paranoidPath
	t.Cleanup(func() { paranoidPath = old })
	paranoidPath = filepath.Join(t.TempDir(), "perf_event_paranoid")

	require.NoError(t, os.WriteFile(paranoidPath, []byte("2\n"), 0644))
	err := annotateOpenErr(unix.EACCES)
	assert.ErrorIs(t, err, unix.EACCES)
	assert.Contains(t, err.Error(), paranoidPath)

	require.NoError(t, os.WriteFile(paranoidPath, []byte("0\n"), 0644))
	assert.Equal(t, unix.EACCES, annotateOpenErr(unix.EACCES))

	assert.Equal(t, unix.ENOENT, annotateOpenErr(unix.ENOENT))
}

func TestOpenErrorMessage(t *testing.T) {
	err := &OpenError{Event: "BUS_CYCLES", Index: 3, Err: unix.ENOENT}
	assert.Equal(t, "perf_event_open BUS_CYCLES (event 3): no such file or directory", err.Error())
	assert.ErrorIs(t, err, unix.ENOENT)
}
