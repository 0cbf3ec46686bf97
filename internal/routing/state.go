// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package routing holds the process-wide extension routing lists and the
// request middleware that consults them.
package routing

import (
	"slices"
	"strings"
	"sync"
	"sync/atomic"
)

// AllExtensions disables every extension when present in the disabled list.
const AllExtensions = "all"

// Lists are the startup values of the routing state.
type Lists struct {
	Disabled    []string
	AdminOnly   []string
	Deactivated []string
	Upgraded    []string
}

// Snapshot is an immutable view of the routing state.
type Snapshot struct {
	Version     uint64
	Disabled    []string
	AdminOnly   []string
	Deactivated []string
	// Upgraded holds "hash/extension-id" entries in insertion order.
	Upgraded []string

	disabled    map[string]struct{}
	adminOnly   map[string]struct{}
	deactivated map[string]struct{}
	upgrades    map[string]string
}

// IsDisabled reports whether id must not be loaded.
func (s *Snapshot) IsDisabled(id string) bool {
	if _, ok := s.disabled[AllExtensions]; ok {
		return true
	}
	_, ok := s.disabled[id]
	return ok
}

// IsAdminOnly reports whether id is restricted to admins.
func (s *Snapshot) IsAdminOnly(id string) bool {
	_, ok := s.adminOnly[id]
	return ok
}

// IsDeactivated reports whether traffic to id is blocked.
func (s *Snapshot) IsDeactivated(id string) bool {
	_, ok := s.deactivated[id]
	return ok
}

// UpgradeHash returns the hash of the newest installed copy of id.
func (s *Snapshot) UpgradeHash(id string) (string, bool) {
	hash, ok := s.upgrades[id]
	return hash, ok
}

// UpgradeEntry formats an upgraded-list entry.
func UpgradeEntry(hash, id string) string {
	return hash + "/" + id
}

// ParseUpgradeEntry splits a "hash/extension-id" entry.
func ParseUpgradeEntry(entry string) (hash, id string, ok bool) {
	hash, id, ok = strings.Cut(entry, "/")
	if !ok || hash == "" || id == "" || strings.Contains(id, "/") {
		return "", "", false
	}
	return hash, id, true
}

// State is the concurrency-safe routing state shared by the installer
// (writer) and the router (reader). Readers load an immutable snapshot
// without locking; writers copy, modify and swap under mu.
type State struct {
	mu      sync.Mutex
	current atomic.Pointer[Snapshot]
}

// NewState creates the routing state from startup lists.
// Duplicate upgraded entries for the same extension collapse to the last one.
func NewState(lists Lists) *State {
	upgraded := make([]string, 0, len(lists.Upgraded))
	for _, entry := range lists.Upgraded {
		_, id, ok := ParseUpgradeEntry(entry)
		if !ok {
			continue
		}
		upgraded = withoutExtension(upgraded, id)
		upgraded = append(upgraded, entry)
	}

	s := &State{}
	s.current.Store(newSnapshot(1, lists.Disabled, lists.AdminOnly, lists.Deactivated, upgraded))
	return s
}

// Snapshot returns the current immutable view.
func (s *State) Snapshot() *Snapshot {
	return s.current.Load()
}

// IsDisabled reports whether id must not be loaded.
func (s *State) IsDisabled(id string) bool { return s.Snapshot().IsDisabled(id) }

// IsAdminOnly reports whether id is restricted to admins.
func (s *State) IsAdminOnly(id string) bool { return s.Snapshot().IsAdminOnly(id) }

// UpgradeHash returns the hash of the newest installed copy of id.
func (s *State) UpgradeHash(id string) (string, bool) { return s.Snapshot().UpgradeHash(id) }

// RegisterUpgrade records that id now lives at hash, replacing any prior
// entry for id and appending the new one.
func (s *State) RegisterUpgrade(id, hash string) *Snapshot {
	return s.update(func(upgraded []string) []string {
		return append(withoutExtension(upgraded, id), UpgradeEntry(hash, id))
	})
}

// RemoveUpgrade drops the upgraded entry for id, if any.
func (s *State) RemoveUpgrade(id string) *Snapshot {
	return s.update(func(upgraded []string) []string {
		return withoutExtension(upgraded, id)
	})
}

func (s *State) update(fn func([]string) []string) *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.current.Load()
	upgraded := fn(slices.Clone(cur.Upgraded))
	next := newSnapshot(cur.Version+1, cur.Disabled, cur.AdminOnly, cur.Deactivated, upgraded)
	s.current.Store(next)
	return next
}

func withoutExtension(entries []string, id string) []string {
	suffix := "/" + id
	return slices.DeleteFunc(entries, func(entry string) bool {
		return strings.HasSuffix(entry, suffix)
	})
}

func newSnapshot(version uint64, disabled, adminOnly, deactivated, upgraded []string) *Snapshot {
	snap := &Snapshot{
		Version:     version,
		Disabled:    slices.Clone(disabled),
		AdminOnly:   slices.Clone(adminOnly),
		Deactivated: slices.Clone(deactivated),
		Upgraded:    upgraded,
		disabled:    toSet(disabled),
		adminOnly:   toSet(adminOnly),
		deactivated: toSet(deactivated),
		upgrades:    make(map[string]string, len(upgraded)),
	}
	for _, entry := range upgraded {
		if hash, id, ok := ParseUpgradeEntry(entry); ok {
			snap.upgrades[id] = hash
		}
	}
	return snap
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
