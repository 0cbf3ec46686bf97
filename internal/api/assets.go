// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package api

import (
	"net/http"

	"github.com/holomush/extmgr/internal/extension"
)

// handleAsset serves the default copy of an extension.
func (s *Server) handleAsset(w http.ResponseWriter, r *http.Request) {
	s.serveTree(w, r, r.PathValue("id"), "")
}

// handleStagedAsset serves a hash-addressed copy; rewritten API traffic of
// upgraded extensions lands here.
func (s *Server) handleStagedAsset(w http.ResponseWriter, r *http.Request) {
	hash := r.PathValue("hash")
	if extension.ValidateID(hash) != nil {
		http.NotFound(w, r)
		return
	}
	s.serveTree(w, r, r.PathValue("id"), hash)
}

func (s *Server) serveTree(w http.ResponseWriter, r *http.Request, id, hash string) {
	if extension.ValidateID(id) != nil || s.deps.State.IsDisabled(id) {
		http.NotFound(w, r)
		return
	}
	path := r.PathValue("path")
	if path == "" || path == extension.DescriptorFile {
		http.NotFound(w, r)
		return
	}
	// http.Dir rejects ".." and serves only below the module directory.
	root := http.Dir(s.deps.Layout.ModuleDir(id, hash))
	r2 := r.Clone(r.Context())
	r2.URL.Path = "/" + path
	r2.URL.RawPath = ""
	http.FileServer(root).ServeHTTP(w, r2)
}
