// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package xdg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirs(t *testing.T) {
	tests := []struct {
		name string
		env  string
		fn   func() string
		set  string
		want string
	}{
		{name: "config from env", env: "XDG_CONFIG_HOME", fn: ConfigDir, set: "/custom/config", want: "/custom/config/extmgr"},
		{name: "config default", env: "XDG_CONFIG_HOME", fn: ConfigDir, want: "/home/testuser/.config/extmgr"},
		{name: "data from env", env: "XDG_DATA_HOME", fn: DataDir, set: "/custom/data", want: "/custom/data/extmgr"},
		{name: "data default", env: "XDG_DATA_HOME", fn: DataDir, want: "/home/testuser/.local/share/extmgr"},
		{name: "state from env", env: "XDG_STATE_HOME", fn: StateDir, set: "/custom/state", want: "/custom/state/extmgr"},
		{name: "state default", env: "XDG_STATE_HOME", fn: StateDir, want: "/home/testuser/.local/state/extmgr"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("HOME", "/home/testuser")
			t.Setenv(tt.env, tt.set)
			assert.Equal(t, tt.want, tt.fn())
		})
	}
}

func TestConfigFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/etc/xdg")
	assert.Equal(t, "/etc/xdg/extmgr/config.yaml", ConfigFile())
}

func TestEnsureDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b")
	require.NoError(t, EnsureDir(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())
}
