// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package api exposes the extension manager over HTTP: JSON admin endpoints
// under /api/v1 and the extension asset tree, both behind the upgrade router.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/samber/oops"

	"github.com/holomush/extmgr/internal/extension"
	"github.com/holomush/extmgr/internal/installer"
	"github.com/holomush/extmgr/internal/locks"
	"github.com/holomush/extmgr/internal/observability"
	"github.com/holomush/extmgr/internal/routing"
	"github.com/holomush/extmgr/pkg/errutil"
)

// CodeBadRequest marks malformed request bodies.
const CodeBadRequest = "BAD_REQUEST"

// maxBodyBytes bounds admin request bodies.
const maxBodyBytes = 64 << 10

// statuses maps error codes onto HTTP status codes.
var statuses = map[string]int{
	CodeBadRequest:                  http.StatusBadRequest,
	extension.CodeInvalidID:         http.StatusBadRequest,
	extension.CodeNotFound:          http.StatusNotFound,
	extension.CodeReleaseNotFound:   http.StatusNotFound,
	extension.CodeFetchFailed:       http.StatusBadGateway,
	extension.CodeCatalogMalformed:  http.StatusBadGateway,
	extension.CodeHashMismatch:      http.StatusUnprocessableEntity,
	extension.CodeArchiveInvalid:    http.StatusUnprocessableEntity,
	extension.CodeDescriptorInvalid: http.StatusUnprocessableEntity,
	extension.CodeFilesystem:        http.StatusInternalServerError,
	locks.CodeLockFailed:            http.StatusConflict,
}

// Catalog is the aggregated view of remote catalogs.
type Catalog interface {
	Installable(ctx context.Context) ([]*extension.Installable, error)
	Releases(ctx context.Context, id string) ([]extension.Release, error)
	Release(ctx context.Context, id, sourceRepo, archive string) (*extension.Release, error)
}

// Installer installs and removes extensions.
type Installer interface {
	Install(ctx context.Context, ext *extension.Installable, release extension.Release) (*installer.Result, error)
	Uninstall(ctx context.Context, id string) error
}

// Registry lists extensions present on disk.
type Registry interface {
	Extensions(ctx context.Context) ([]*extension.Extension, error)
	Installable(ctx context.Context) ([]*extension.Installable, error)
}

// Deps are the collaborators of a Server.
type Deps struct {
	Layout    extension.Layout
	Catalog   Catalog
	Installer Installer
	Registry  Registry
	State     *routing.State
}

// Server serves the admin API and extension assets.
type Server struct {
	deps Deps
}

// NewServer creates a Server over deps.
func NewServer(deps Deps) *Server {
	return &Server{deps: deps}
}

// Handler returns the full HTTP handler, wrapped by the upgrade router.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	handle := func(pattern, name string, h http.HandlerFunc) {
		mux.Handle(pattern, observability.Instrument(name, h))
	}

	handle("GET /api/v1/extensions", "extensions", s.handleExtensions)
	handle("GET /api/v1/extension/installed", "installed", s.handleInstalled)
	handle("GET /api/v1/extension/catalog", "catalog", s.handleCatalog)
	handle("GET /api/v1/extension/{id}/releases", "releases", s.handleReleases)
	handle("POST /api/v1/extension", "install", s.handleInstall)
	handle("DELETE /api/v1/extension/{id}", "uninstall", s.handleUninstall)
	handle("GET /api/v1/routing", "routing", s.handleRouting)

	mux.HandleFunc("GET /"+routing.UpgradesPrefix+"/{hash}/{id}/{path...}", s.handleStagedAsset)
	mux.HandleFunc("GET /{id}/{path...}", s.handleAsset)

	return routing.Middleware(s.deps.State)(mux)
}

func (s *Server) handleExtensions(w http.ResponseWriter, r *http.Request) {
	exts, err := s.deps.Registry.Extensions(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exts)
}

func (s *Server) handleInstalled(w http.ResponseWriter, r *http.Request) {
	exts, err := s.deps.Registry.Installable(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exts)
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	exts, err := s.deps.Catalog.Installable(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exts)
}

func (s *Server) handleReleases(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := extension.ValidateID(id); err != nil {
		writeError(w, r, err)
		return
	}
	releases, err := s.deps.Catalog.Releases(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, releases)
}

// InstallRequest is the body of POST /api/v1/extension.
type InstallRequest struct {
	ExtID      string `json:"ext_id"`
	Archive    string `json:"archive"`
	SourceRepo string `json:"source_repo"`
}

// InstallResponse reports a completed install.
type InstallResponse struct {
	Extension *extension.Extension `json:"extension"`
	Hash      string               `json:"hash"`
	Verified  bool                 `json:"verified"`
	Digest    string               `json:"digest"`
	AttemptID string               `json:"attempt_id"`
	// Warning is set when the install succeeded but its record was not stored.
	Warning string `json:"warning,omitempty"`
}

func (s *Server) handleInstall(w http.ResponseWriter, r *http.Request) {
	var req InstallRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, r, oops.Code(CodeBadRequest).Wrapf(err, "decode install request"))
		return
	}
	if req.ExtID == "" || req.Archive == "" || req.SourceRepo == "" {
		writeError(w, r, oops.Code(CodeBadRequest).Errorf("ext_id, archive and source_repo are required"))
		return
	}
	if err := extension.ValidateID(req.ExtID); err != nil {
		writeError(w, r, err)
		return
	}

	ctx := r.Context()
	ext, err := s.findInstallable(ctx, req.ExtID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	release, err := s.deps.Catalog.Release(ctx, req.ExtID, req.SourceRepo, req.Archive)
	if err != nil {
		writeError(w, r, err)
		return
	}
	result, err := s.deps.Installer.Install(ctx, ext, *release)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := InstallResponse{
		Extension: extension.FromInstallable(result.Extension, true),
		Hash:      result.Hash,
		Verified:  result.Verified,
		Digest:    result.Digest,
		AttemptID: result.AttemptID,
	}
	if result.MetadataErr != nil {
		resp.Warning = "install record not saved: " + result.MetadataErr.Error()
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) findInstallable(ctx context.Context, id string) (*extension.Installable, error) {
	exts, err := s.deps.Catalog.Installable(ctx)
	if err != nil {
		return nil, err
	}
	for _, ext := range exts {
		if ext.ID == id {
			return ext, nil
		}
	}
	return nil, oops.Code(extension.CodeNotFound).With("extension", id).Wrap(extension.ErrNotFound)
}

func (s *Server) handleUninstall(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Installer.Uninstall(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RoutingResponse is the current routing snapshot.
type RoutingResponse struct {
	Version     uint64   `json:"version"`
	Disabled    []string `json:"disabled"`
	AdminOnly   []string `json:"admin_only"`
	Deactivated []string `json:"deactivated"`
	Upgraded    []string `json:"upgraded"`
}

func (s *Server) handleRouting(w http.ResponseWriter, _ *http.Request) {
	snap := s.deps.State.Snapshot()
	writeJSON(w, http.StatusOK, RoutingResponse{
		Version:     snap.Version,
		Disabled:    nonNil(snap.Disabled),
		AdminOnly:   nonNil(snap.AdminOnly),
		Deactivated: nonNil(snap.Deactivated),
		Upgraded:    nonNil(snap.Upgraded),
	})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// ErrorResponse is the body of every failed admin request.
type ErrorResponse struct {
	Detail string `json:"detail"`
	Code   string `json:"code,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errutil.HTTPStatus(err, statuses)
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		status = http.StatusRequestEntityTooLarge
	}
	if status >= http.StatusInternalServerError {
		errutil.LogWarn(r.Context(), slog.Default(), "admin request failed", err,
			"method", r.Method, "path", r.URL.Path)
	}
	writeJSON(w, status, ErrorResponse{Detail: err.Error(), Code: errutil.Code(err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("failed to write response", "error", err)
	}
}
