// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gviegas/qsync/driver"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
queues = 2
priority = "low"

[fake]
latency = "2ms"
engine_concurrency = 4
`), 0o644))
	qc, fc, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 2, qc.Queues)
	assert.Equal(t, driver.PriorityLow, qc.Priority)
	assert.Equal(t, 2*time.Millisecond, time.Duration(fc.Latency))
	assert.Equal(t, 4, fc.EngineConcurrency)

	_, fc, err = loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 2, fc.EngineConcurrency)
}

func TestRun(t *testing.T) {
	var buf bytes.Buffer
	cmd := newCommand()
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs([]string{"../../internal/scenario/testdata/frame.yaml"})
	require.NoError(t, cmd.Execute())
	s := buf.String()
	assert.True(t, strings.Contains(s, "trace"), s)
	assert.True(t, strings.Contains(s, `"scene"`), s)
	assert.False(t, strings.Contains(s, "failed"), s)

	cmd = newCommand()
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs([]string{})
	assert.Error(t, cmd.Execute())
}
