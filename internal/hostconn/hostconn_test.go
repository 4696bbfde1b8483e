package hostconn

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSSHRunnerValidation(t *testing.T) {
	_, err := NewSSHRunner(SSHConfig{User: "root"}, nil)
	assert.ErrorContains(t, err, "host cannot be empty")

	_, err = NewSSHRunner(SSHConfig{Host: "node1"}, nil)
	assert.ErrorContains(t, err, "user cannot be empty")

	_, err = NewSSHRunner(SSHConfig{Host: "node1", User: "root", KeyPath: "/nonexistent/key"}, nil)
	assert.ErrorContains(t, err, "failed to read ssh key")
}

func TestNewSSHRunnerRejectsGarbageKey(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "key")
	require.NoError(t, os.WriteFile(keyPath, []byte("not a key"), 0o600))

	_, err := NewSSHRunner(SSHConfig{Host: "node1", User: "root", KeyPath: keyPath}, nil)
	assert.ErrorContains(t, err, "failed to parse ssh key")
}

func TestLocalRunnerRun(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	r := NewLocalRunner()

	out, err := r.Run("echo hello")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", out)
}

func TestLocalRunnerFailureIncludesOutput(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	r := NewLocalRunner()

	_, err := r.Run("echo oops >&2; exit 3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oops")
}

func TestLocalRunnerCheckAlive(t *testing.T) {
	r := NewLocalRunner()
	assert.NoError(t, r.CheckAlive())
	assert.NoError(t, r.Close())
}

func TestCheckPingFuncStubbed(t *testing.T) {
	orig := CheckPingFunc
	defer func() { CheckPingFunc = orig }()

	CheckPingFunc = func(host string) error {
		if host == "dead-host" {
			return errors.New("packet loss")
		}
		return nil
	}

	assert.Error(t, CheckPingFunc("dead-host"))
	assert.NoError(t, CheckPingFunc("live-host"))
}
