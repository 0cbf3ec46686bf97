// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package extension_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/holomush/extmgr/internal/extension"
	"github.com/holomush/extmgr/internal/routing"
)

func writeExtension(t *testing.T, layout extension.Layout, id, descriptor string) {
	t.Helper()
	dir := layout.ExtensionDir(id)
	mkdirAll(t, dir)
	if descriptor != "" {
		writeFile(t, filepath.Join(dir, extension.DescriptorFile), []byte(descriptor))
	}
}

func ids(exts []*extension.Extension) []string {
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		out = append(out, e.ID)
	}
	return out
}

func TestRegistry_Extensions(t *testing.T) {
	layout := extension.Layout{Root: t.TempDir()}
	writeExtension(t, layout, "alpha", `{"name":"Alpha","short_description":"first"}`)
	writeExtension(t, layout, "beta", `{"name": `)
	writeExtension(t, layout, "gamma", "")
	writeExtension(t, layout, "admin", `{"name":"Admin"}`)
	writeFile(t, filepath.Join(layout.ExtensionsDir(), "README.md"), []byte("not an extension"))
	mkdirAll(t, filepath.Join(layout.ExtensionsDir(), ".alpha.tmp-123"))

	state := routing.NewState(routing.Lists{AdminOnly: []string{"admin"}})
	reg := extension.NewRegistry(layout, state)

	all, err := reg.Extensions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"admin", "alpha", "beta", "gamma"}, ids(all))

	byID := map[string]*extension.Extension{}
	for _, e := range all {
		byID[e.ID] = e
	}
	assert.True(t, byID["alpha"].Valid)
	assert.Equal(t, "Alpha", byID["alpha"].Name)
	assert.False(t, byID["alpha"].AdminOnly)
	assert.True(t, byID["admin"].AdminOnly)
	assert.False(t, byID["beta"].Valid, "malformed descriptor is invalid")
	assert.False(t, byID["gamma"].Valid, "missing descriptor is invalid")

	valid, err := reg.Valid(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"admin", "alpha"}, ids(valid))
}

func TestRegistry_Disabled(t *testing.T) {
	layout := extension.Layout{Root: t.TempDir()}
	writeExtension(t, layout, "alpha", `{"name":"Alpha"}`)
	writeExtension(t, layout, "beta", `{"name":"Beta"}`)

	tests := []struct {
		name     string
		disabled []string
		want     []string
	}{
		{name: "none disabled", disabled: nil, want: []string{"alpha", "beta"}},
		{name: "one disabled", disabled: []string{"beta"}, want: []string{"alpha"}},
		{name: "all sentinel", disabled: []string{"all"}, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := extension.NewRegistry(layout, routing.NewState(routing.Lists{Disabled: tt.disabled}))
			all, err := reg.Extensions(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(all))
		})
	}
}

func TestRegistry_NonExistentDirectory(t *testing.T) {
	layout := extension.Layout{Root: filepath.Join(t.TempDir(), "missing")}
	reg := extension.NewRegistry(layout, routing.NewState(routing.Lists{}))

	all, err := reg.Extensions(context.Background())
	require.NoError(t, err, "missing extensions dir is not an error")
	assert.Empty(t, all)
}

func TestRegistry_HashFollowsUpgrades(t *testing.T) {
	layout := extension.Layout{Root: t.TempDir()}
	writeExtension(t, layout, "alpha", `{"name":"Alpha"}`)
	state := routing.NewState(routing.Lists{})
	reg := extension.NewRegistry(layout, state)

	ext, err := reg.Get(context.Background(), "alpha")
	require.NoError(t, err)
	assert.Empty(t, ext.Hash)
	assert.Equal(t, layout.ExtensionDir("alpha"), ext.ModuleDir(layout))

	state.RegisterUpgrade("alpha", "abc")
	ext, err = reg.Get(context.Background(), "alpha")
	require.NoError(t, err)
	assert.Equal(t, "abc", ext.Hash)
	assert.Equal(t, layout.StagedModuleDir("alpha", "abc"), ext.ModuleDir(layout))
}

func TestRegistry_Get_NotFound(t *testing.T) {
	layout := extension.Layout{Root: t.TempDir()}
	writeExtension(t, layout, "off", `{}`)
	reg := extension.NewRegistry(layout, routing.NewState(routing.Lists{Disabled: []string{"off"}}))

	_, err := reg.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, extension.ErrNotFound)

	_, err = reg.Get(context.Background(), "off")
	assert.ErrorIs(t, err, extension.ErrNotFound)
}

func TestRegistry_HasInstalledVersion(t *testing.T) {
	layout := extension.Layout{Root: t.TempDir()}
	writeExtension(t, layout, "bundled", `{"name":"Bundled"}`)
	writeExtension(t, layout, "managed", `{"name":"Managed","is_installed":true}`)
	reg := extension.NewRegistry(layout, routing.NewState(routing.Lists{}))

	assert.False(t, reg.HasInstalledVersion("bundled"))
	assert.True(t, reg.HasInstalledVersion("managed"))
	assert.False(t, reg.HasInstalledVersion("missing"))
}

type mockRecords struct {
	mock.Mock
}

func (m *mockRecords) Get(ctx context.Context, id string) (*extension.Installable, error) {
	args := m.Called(ctx, id)
	if v := args.Get(0); v != nil {
		return v.(*extension.Installable), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestRegistry_Installable(t *testing.T) {
	layout := extension.Layout{Root: t.TempDir()}
	writeExtension(t, layout, "alpha", `{"name":"Alpha"}`)
	writeExtension(t, layout, "beta", `{"name":"Beta"}`)

	release := &extension.Release{Version: "v1.0.0", Archive: "https://x/alpha.zip", SourceRepo: "o/alpha"}
	records := &mockRecords{}
	records.On("Get", mock.Anything, "alpha").Return(&extension.Installable{
		ID:               "alpha",
		Icon:             "bolt",
		Dependencies:     []string{"beta"},
		InstalledRelease: release,
	}, nil)
	records.On("Get", mock.Anything, "beta").Return(nil, extension.ErrNotFound)

	reg := extension.NewRegistry(layout, routing.NewState(routing.Lists{}), extension.WithInstallRecords(records))
	got, err := reg.Installable(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "alpha", got[0].ID)
	assert.Equal(t, "Alpha", got[0].Name)
	assert.Equal(t, release, got[0].InstalledRelease)
	assert.Equal(t, extension.HashString(release.Archive), got[0].Hash())
	assert.Equal(t, []string{"beta"}, got[0].Dependencies)

	assert.Equal(t, "beta", got[1].ID)
	assert.Equal(t, extension.NotInstalledHash, got[1].Hash())
	records.AssertExpectations(t)
}

func TestRegistry_Installable_StoreError(t *testing.T) {
	layout := extension.Layout{Root: t.TempDir()}
	writeExtension(t, layout, "alpha", `{"name":"Alpha"}`)

	records := &mockRecords{}
	records.On("Get", mock.Anything, "alpha").Return(nil, errors.New("connection refused"))

	reg := extension.NewRegistry(layout, routing.NewState(routing.Lists{}), extension.WithInstallRecords(records))
	_, err := reg.Installable(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}
