package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yarkm13/fetchopusd/internal/job"
)

func TestParseStatus(t *testing.T) {
	status, err := parseStatus("done")
	require.NoError(t, err)
	assert.Equal(t, job.StatusDone, status)

	status, err = parseStatus("")
	require.NoError(t, err)
	assert.Empty(t, status)

	_, err = parseStatus("paused")
	assert.Error(t, err)
}

func TestSecureWipe(t *testing.T) {
	secret := []byte("hunter2")
	secureWipe(secret)
	assert.Equal(t, make([]byte, 7), secret)
	secureWipe(nil)
}

func TestTrimEOL(t *testing.T) {
	assert.Equal(t, []byte("pass"), trimEOL([]byte("pass\r\n")))
	assert.Equal(t, []byte("pass"), trimEOL([]byte("pass")))
	assert.Empty(t, trimEOL([]byte("\n")))
}

func TestCommandTree(t *testing.T) {
	for _, path := range [][]string{
		{"serve"},
		{"run"},
		{"jobs", "create"},
		{"jobs", "list"},
		{"jobs", "purge"},
		{"accounts", "add"},
		{"accounts", "list"},
		{"browse"},
	} {
		cmd, _, err := rootCmd.Find(path)
		require.NoError(t, err, "%v", path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}
