// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package extension

// Extension is a locally discovered extension: a view over disk state plus
// the process-wide enablement lists. It is recomputed on every query.
type Extension struct {
	ID               string   `json:"code"`
	Valid            bool     `json:"is_valid"`
	AdminOnly        bool     `json:"is_admin_only"`
	Name             string   `json:"name,omitempty"`
	ShortDescription string   `json:"short_description,omitempty"`
	Tile             string   `json:"tile,omitempty"`
	Contributors     []string `json:"contributors,omitempty"`
	Hidden           bool     `json:"hidden"`
	MigrationModule  string   `json:"migration_module,omitempty"`
	DBName           string   `json:"db_name,omitempty"`
	// Hash selects the hash-addressed copy; empty means the default location.
	Hash string `json:"hash"`
}

// FromInstallable builds the registry view of a freshly installed extension.
func FromInstallable(e *Installable, active bool) *Extension {
	ext := &Extension{
		ID:               e.ID,
		Valid:            true,
		AdminOnly:        e.AdminOnly,
		Name:             e.Name,
		ShortDescription: e.ShortDescription,
	}
	if active {
		ext.Hash = e.Hash()
	}
	return ext
}

// ModuleDir resolves where the code for this extension lives in layout.
func (e *Extension) ModuleDir(layout Layout) string {
	return layout.ModuleDir(e.ID, e.Hash)
}

func (e *Extension) applyDescriptor(d *Descriptor) {
	e.Name = d.Name
	e.ShortDescription = d.ShortDescription
	e.Tile = d.Tile
	e.Contributors = d.Contributors
	e.Hidden = d.Hidden
	e.MigrationModule = d.MigrationModule
	e.DBName = d.DBName
}
