// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package routing

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// UpgradesPrefix is the first path segment of rewritten requests.
const UpgradesPrefix = "upgrades"

// apiSegment marks a request as an extension API call.
const apiSegment = "api"

// Action is the outcome of routing one request.
type Action string

// Routing outcomes.
const (
	ActionPass    Action = "pass"
	ActionBlock   Action = "blocked"
	ActionRewrite Action = "rewritten"
)

// Decision describes what the router does with a path.
type Decision struct {
	Action    Action
	Extension string
	// Path is the rewritten path when Action is ActionRewrite.
	Path string
}

// Decide routes path against snap. It performs no I/O.
func Decide(snap *Snapshot, path string) Decision {
	segments := strings.SplitN(strings.TrimPrefix(path, "/"), "/", 3)
	name := segments[0]
	if name == "" {
		return Decision{Action: ActionPass}
	}

	if snap.IsDeactivated(name) {
		return Decision{Action: ActionBlock, Extension: name}
	}

	if len(segments) >= 2 && segments[1] == apiSegment {
		if hash, ok := snap.UpgradeHash(name); ok {
			tail := strings.Join(segments[1:], "/")
			return Decision{
				Action:    ActionRewrite,
				Extension: name,
				Path:      "/" + UpgradesPrefix + "/" + hash + "/" + name + "/" + tail,
			}
		}
	}

	return Decision{Action: ActionPass, Extension: name}
}

// Router blocks traffic to deactivated extensions and diverts API traffic
// of upgraded extensions to their hash-addressed location before the
// request reaches application routing.
type Router struct {
	state *State
	next  http.Handler
}

// NewRouter wraps next with upgrade routing over state.
func NewRouter(state *State, next http.Handler) *Router {
	return &Router{state: state, next: next}
}

// Middleware returns the router as a standard middleware constructor.
func Middleware(state *State) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return NewRouter(state, next)
	}
}

// ServeHTTP implements http.Handler.
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d := Decide(rt.state.Snapshot(), r.URL.Path)
	RecordDecision(d.Action)

	switch d.Action {
	case ActionBlock:
		writeDisabled(w, d.Extension)
		return
	case ActionRewrite:
		r2 := r.Clone(r.Context())
		r2.URL.Path = d.Path
		r2.URL.RawPath = ""
		r2.RequestURI = r2.URL.RequestURI()
		rt.next.ServeHTTP(w, r2)
		return
	default:
		rt.next.ServeHTTP(w, r)
	}
}

func writeDisabled(w http.ResponseWriter, name string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	//nolint:errcheck // client may disconnect
	json.NewEncoder(w).Encode(map[string]string{
		"detail": fmt.Sprintf("Extension '%s' disabled", name),
	})
}
