// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package extension_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/extmgr/internal/extension"
	"github.com/holomush/extmgr/pkg/errutil"
)

func TestParseDescriptor(t *testing.T) {
	data := []byte(`{
		"name": "Nostr Admin",
		"short_description": "Manage relays",
		"tile": "/nostradmin/static/image/nostr.png",
		"contributors": ["arcbtc"],
		"hidden": true,
		"migration_module": "nostradmin.migrations",
		"db_name": "ext_nostradmin"
	}`)

	d, err := extension.ParseDescriptor(data)
	require.NoError(t, err)
	assert.Equal(t, "Nostr Admin", d.Name)
	assert.Equal(t, "Manage relays", d.ShortDescription)
	assert.Equal(t, []string{"arcbtc"}, d.Contributors)
	assert.True(t, d.Hidden)
	assert.Equal(t, "nostradmin.migrations", d.MigrationModule)
	assert.Equal(t, "ext_nostradmin", d.DBName)
	assert.False(t, d.IsInstalled)
}

func TestParseDescriptor_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "empty", data: ""},
		{name: "whitespace", data: "  \n"},
		{name: "bad json", data: `{"name": `},
		{name: "wrong type", data: `{"hidden": "yes"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := extension.ParseDescriptor([]byte(tt.data))
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, extension.CodeDescriptorInvalid)
		})
	}
}

func TestMarkInstalled_PreservesUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, extension.DescriptorFile),
		[]byte(`{"name":"Foo","tile":"/foo/static/t.png","custom":{"k":1}}`))

	d, err := extension.MarkInstalled(dir)
	require.NoError(t, err)
	assert.True(t, d.IsInstalled)
	assert.Equal(t, "Foo", d.Name)

	data, err := os.ReadFile(filepath.Join(dir, extension.DescriptorFile))
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, true, raw["is_installed"])
	assert.Equal(t, map[string]any{"k": float64(1)}, raw["custom"])
}

func TestMarkInstalled_MissingDescriptor(t *testing.T) {
	_, err := extension.MarkInstalled(t.TempDir())
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, extension.CodeDescriptorInvalid)
}
