// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/extmgr/internal/config"
	"github.com/holomush/extmgr/internal/extension"
	"github.com/holomush/extmgr/internal/store"
	"github.com/holomush/extmgr/pkg/errutil"
)

func execute(t *testing.T, deps *Deps, args ...string) (string, error) {
	t.Helper()
	original := slog.Default()
	t.Cleanup(func() { slog.SetDefault(original) })

	cmd := newRootCmd(deps)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// catalogServer serves a manifest advertising tpos 1.0.0 and its archive.
func catalogServer(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range map[string]string{
		"tpos-1.0.0/config.json":    `{"name":"TPoS","short_description":"Point of sale"}`,
		"tpos-1.0.0/api/v1/status":  "ok",
		"tpos-1.0.0/static/tpos.js": "js",
	} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	archive := buf.Bytes()
	sum := sha256.Sum256(archive)

	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/manifest.json", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"extensions":[{"id":"tpos","name":"TPoS","version":"1.0.0",` +
			`"archive":"` + srv.URL + `/tpos.zip","hash":"` + hex.EncodeToString(sum[:]) + `"}]}`))
	})
	mux.HandleFunc("/tpos.zip", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(archive)
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv.URL + "/manifest.json"
}

// baseArgs isolates a command from the user's configuration and directories.
func baseArgs(t *testing.T) []string {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	return []string{
		"--root", t.TempDir(),
		"--data-dir", t.TempDir(),
		"--log-format", "text",
		"--retries", "0",
	}
}

// sharedStore makes every command in a test see the same install records.
func sharedStore(s store.InstallStore) *Deps {
	return &Deps{
		StoreFactory: func(context.Context, *config.Config) (store.InstallStore, func(), error) {
			return s, func() {}, nil
		},
	}
}

func TestRootCmd_Help(t *testing.T) {
	out, err := execute(t, nil, "--help")
	require.NoError(t, err)
	for _, sub := range []string{"serve", "catalog", "releases", "install", "uninstall", "list", "routing", "migrate"} {
		assert.Contains(t, out, sub)
	}
}

func TestRootCmd_InvalidOutput(t *testing.T) {
	_, err := execute(t, nil, append(baseArgs(t), "list", "--output", "xml")...)
	errutil.AssertErrorCode(t, err, config.CodeInvalidConfig)
}

func TestRootCmd_InvalidConfig(t *testing.T) {
	_, err := execute(t, nil, append(baseArgs(t), "list", "--store", "postgres")...)
	errutil.AssertErrorCode(t, err, config.CodeInvalidConfig)
}

func TestRootCmd_ExplicitConfigMustExist(t *testing.T) {
	_, err := execute(t, nil, append(baseArgs(t), "--config", filepath.Join(t.TempDir(), "missing.yaml"), "list")...)
	errutil.AssertErrorCode(t, err, config.CodeInvalidConfig)
}

func TestExitCode(t *testing.T) {
	_, err := execute(t, nil, append(baseArgs(t), "list", "--store", "postgres")...)
	assert.Equal(t, 2, exitCode(err))
	assert.Equal(t, 1, exitCode(errors.New("boom")))
}

func TestCatalogCmd(t *testing.T) {
	manifest := catalogServer(t)
	out, err := execute(t, nil, append(baseArgs(t), "--manifest", manifest, "catalog", "-o", "json")...)
	require.NoError(t, err)

	var exts []extension.Installable
	require.NoError(t, json.Unmarshal([]byte(out), &exts))
	require.Len(t, exts, 1)
	assert.Equal(t, "tpos", exts[0].ID)
	require.NotNil(t, exts[0].LatestRelease)
	assert.Equal(t, "1.0.0", exts[0].LatestRelease.Version)
}

func TestCatalogCmd_RequiresManifests(t *testing.T) {
	_, err := execute(t, nil, append(baseArgs(t), "catalog")...)
	require.ErrorIs(t, err, errNoManifests)
}

func TestReleasesCmd_Table(t *testing.T) {
	manifest := catalogServer(t)
	out, err := execute(t, nil, append(baseArgs(t), "--manifest", manifest, "releases", "tpos")...)
	require.NoError(t, err)
	assert.Contains(t, out, "VERSION")
	assert.Contains(t, out, "1.0.0")
	assert.Contains(t, out, "true")
}

func TestInstallLifecycle(t *testing.T) {
	manifest := catalogServer(t)
	args := append(baseArgs(t), "--manifest", manifest)
	deps := sharedStore(store.NewMemory())

	out, err := execute(t, deps, append(args, "install", "tpos", "-o", "json")...)
	require.NoError(t, err)
	var installed installOutput
	require.NoError(t, json.Unmarshal([]byte(out), &installed))
	assert.Equal(t, "tpos", installed.ID)
	assert.Equal(t, "1.0.0", installed.Version)
	assert.True(t, installed.Verified)
	assert.FileExists(t, filepath.Join(installed.Path, "api", "v1", "status"))

	// A fresh process restores the upgrade route from the install record.
	out, err = execute(t, deps, append(args, "routing", "-o", "json")...)
	require.NoError(t, err)
	var routes routingOutput
	require.NoError(t, json.Unmarshal([]byte(out), &routes))
	assert.Equal(t, []string{installed.Hash + "/tpos"}, routes.Upgraded)

	out, err = execute(t, deps, append(args, "list", "--valid", "-o", "yaml")...)
	require.NoError(t, err)
	assert.Contains(t, out, "id: tpos")
	assert.Contains(t, out, "hash: "+installed.Hash)

	out, err = execute(t, deps, append(args, "uninstall", "tpos")...)
	require.NoError(t, err)
	assert.Contains(t, out, "uninstalled tpos")
	assert.NoDirExists(t, installed.Path)

	out, err = execute(t, deps, append(args, "routing", "-o", "json")...)
	require.NoError(t, err)
	routes = routingOutput{}
	require.NoError(t, json.Unmarshal([]byte(out), &routes))
	assert.Empty(t, routes.Upgraded)
}

func TestInstallCmd_Errors(t *testing.T) {
	manifest := catalogServer(t)

	tests := []struct {
		name     string
		args     []string
		wantCode string
	}{
		{name: "unknown extension", args: []string{"install", "nope"}, wantCode: extension.CodeNotFound},
		{name: "unknown version", args: []string{"install", "tpos", "--version", "9.9.9"}, wantCode: extension.CodeReleaseNotFound},
		{name: "unsafe id", args: []string{"install", "../x"}, wantCode: extension.CodeInvalidID},
		{name: "archive without source", args: []string{"install", "tpos", "--archive", "https://x/y.zip"}, wantCode: config.CodeInvalidConfig},
		{
			name:     "archive not in catalog",
			args:     []string{"install", "tpos", "--archive", "https://x/y.zip", "--source-repo", "acme/tpos"},
			wantCode: extension.CodeReleaseNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append(baseArgs(t), "--manifest", manifest)
			_, err := execute(t, nil, append(args, tt.args...)...)
			errutil.AssertErrorCode(t, err, tt.wantCode)
		})
	}
}

type fakeMigrator struct {
	calls   []string
	version uint
	failUp  error
	closed  bool
}

func (m *fakeMigrator) Up() error   { m.calls = append(m.calls, "up"); return m.failUp }
func (m *fakeMigrator) Down() error { m.calls = append(m.calls, "down"); return nil }
func (m *fakeMigrator) Steps(n int) error {
	m.calls = append(m.calls, "steps")
	m.version = uint(int(m.version) + n)
	return nil
}
func (m *fakeMigrator) Force(v int) error {
	m.calls = append(m.calls, "force")
	m.version = uint(v)
	return nil
}
func (m *fakeMigrator) Pending() ([]uint, error) { return []uint{2}, nil }
func (m *fakeMigrator) Close() error             { m.closed = true; return nil }
func (m *fakeMigrator) Version() (uint, bool, error) {
	return m.version, false, nil
}

func TestMigrateCmd(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		wantCalls []string
		wantOut   string
	}{
		{name: "default applies", args: []string{"migrate"}, wantCalls: []string{"up"}, wantOut: "migrations applied"},
		{name: "up", args: []string{"migrate", "up"}, wantCalls: []string{"up"}, wantOut: "migrations applied"},
		{name: "down", args: []string{"migrate", "down"}, wantCalls: []string{"down"}, wantOut: "rolled back"},
		{name: "down steps", args: []string{"migrate", "down", "--steps", "1"}, wantCalls: []string{"steps"}, wantOut: "rolled back"},
		{name: "status", args: []string{"migrate", "status"}, wantOut: "pending: 1"},
		{name: "force", args: []string{"migrate", "force", "1"}, wantCalls: []string{"force"}, wantOut: "forced version 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &fakeMigrator{version: 1}
			var gotURL string
			deps := &Deps{MigratorFactory: func(url string) (Migrator, error) {
				gotURL = url
				return m, nil
			}}
			args := append(baseArgs(t), "--store", "postgres", "--database-url", "postgres://u@h/db")
			out, err := execute(t, deps, append(args, tt.args...)...)
			require.NoError(t, err)
			assert.Equal(t, "postgres://u@h/db", gotURL)
			assert.Equal(t, tt.wantCalls, m.calls)
			assert.Contains(t, out, tt.wantOut)
			assert.True(t, m.closed)
		})
	}
}

func TestMigrateCmd_Errors(t *testing.T) {
	t.Run("requires postgres", func(t *testing.T) {
		_, err := execute(t, nil, append(baseArgs(t), "migrate")...)
		errutil.AssertErrorCode(t, err, config.CodeInvalidConfig)
	})
	t.Run("invalid force version", func(t *testing.T) {
		args := append(baseArgs(t), "--store", "postgres", "--database-url", "postgres://x")
		_, err := execute(t, &Deps{MigratorFactory: func(string) (Migrator, error) { return &fakeMigrator{}, nil }},
			append(args, "migrate", "force", "abc")...)
		errutil.AssertErrorCode(t, err, config.CodeInvalidConfig)
	})
	t.Run("failure propagates and closes", func(t *testing.T) {
		m := &fakeMigrator{failUp: errors.New("dirty database")}
		args := append(baseArgs(t), "--store", "postgres", "--database-url", "postgres://x")
		_, err := execute(t, &Deps{MigratorFactory: func(string) (Migrator, error) { return m, nil }},
			append(args, "migrate", "up")...)
		require.ErrorContains(t, err, "dirty database")
		assert.True(t, m.closed)
	})
}

func TestServeCmd(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := newRootCmd(nil)
	pr, pw := io.Pipe()
	cmd.SetOut(pw)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append(baseArgs(t), "serve", "--listen", "127.0.0.1:0", "--metrics-addr", ""))

	original := slog.Default()
	defer slog.SetDefault(original)

	done := make(chan error, 1)
	go func() {
		done <- cmd.ExecuteContext(ctx)
		_ = pw.Close()
	}()

	line := make([]byte, 256)
	n, err := pr.Read(line)
	require.NoError(t, err)
	addr := strings.TrimSpace(strings.TrimPrefix(string(line[:n]), "extmgr serving on "))
	go func() { _, _ = io.Copy(io.Discard, pr) }()

	resp, err := http.Get("http://" + addr + "/api/v1/routing")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not shut down")
	}
}

func TestOpenStoreAndLocker_Memory(t *testing.T) {
	cfg := &config.Config{
		Store: config.Store{Driver: config.DriverMemory},
		Locks: config.Locks{Driver: config.DriverLocal},
	}
	s, closeStore, err := openStore(context.Background(), cfg)
	require.NoError(t, err)
	defer closeStore()
	assert.IsType(t, &store.Memory{}, s)

	l, closeLocker, err := openLocker(context.Background(), cfg)
	require.NoError(t, err)
	defer closeLocker()
	release, err := l.Lock(context.Background(), "tpos")
	require.NoError(t, err)
	release()
}
