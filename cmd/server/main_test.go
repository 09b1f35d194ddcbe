package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/carvajal-autotech/quiz-service/internal/config"
	"github.com/carvajal-autotech/quiz-service/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingCloser struct {
	closed int
}

func (c *countingCloser) Close() error {
	c.closed++
	return nil
}

func TestFinish_ClosesSinkOnFailure(t *testing.T) {
	closer := &countingCloser{}
	assert.Equal(t, 1, finish(utils.NewNopLogger(), closer, errors.New("bind: address already in use")))
	assert.Equal(t, 1, closer.closed)

	closer = &countingCloser{}
	assert.Equal(t, 0, finish(utils.NewNopLogger(), closer, nil))
	assert.Equal(t, 1, closer.closed)
}

func TestFinish_FatalErrorReachesLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quiz.log")
	logger, closer := utils.NewLogger("production", config.LogConfig{Level: "info", File: path, MaxSizeMB: 1})

	require.Equal(t, 1, finish(logger, closer, errors.New("database unreachable")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Server stopped with error")
	assert.Contains(t, string(data), "database unreachable")
}
