// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"io"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/extmgr/internal/config"
	"github.com/holomush/extmgr/internal/extension"
	"github.com/holomush/extmgr/internal/installer"
)

// withApp builds the app for one command and closes it afterwards.
func (c *cli) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, c.cfg, c.deps)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func newCatalogCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "List extensions advertised by the configured catalogs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(c.cfg.Catalog.Manifests) == 0 {
				return errNoManifests
			}
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				exts, err := a.aggregator.Installable(ctx)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), c.output, exts, func(w io.Writer) {
					row(w, "ID", "NAME", "LATEST", "SOURCE", "STARS")
					for _, e := range exts {
						latest, source := "-", "-"
						if e.LatestRelease != nil {
							latest, source = orDash(e.LatestRelease.Version), orDash(e.LatestRelease.SourceRepo)
						}
						row(w, e.ID, orDash(e.Name), latest, source, e.Stars)
					}
				})
			})
		},
	}
}

func newReleasesCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "releases <id>",
		Short: "List every release of an extension, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := extension.ValidateID(args[0]); err != nil {
				return err
			}
			if len(c.cfg.Catalog.Manifests) == 0 {
				return errNoManifests
			}
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				releases, err := a.aggregator.Releases(ctx, args[0])
				if err != nil {
					return err
				}
				extension.SortReleases(releases)
				return render(cmd.OutOrStdout(), c.output, releases, func(w io.Writer) {
					row(w, "VERSION", "SOURCE", "VERIFIED", "ARCHIVE")
					for _, r := range releases {
						row(w, orDash(r.Version), r.SourceRepo, r.Hash != "", r.Archive)
					}
				})
			})
		},
	}
}

type installFlags struct {
	version    string
	archive    string
	sourceRepo string
}

func newInstallCmd(c *cli) *cobra.Command {
	f := &installFlags{}
	cmd := &cobra.Command{
		Use:   "install <id>",
		Short: "Download, verify and publish an extension release",
		Long: `Install an extension release from the configured catalogs. Without
flags the newest release is installed; --version selects a release by tag and
--archive with --source-repo selects one exact release.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			if err := extension.ValidateID(id); err != nil {
				return err
			}
			if (f.archive == "") != (f.sourceRepo == "") {
				return oops.Code(config.CodeInvalidConfig).Errorf("--archive and --source-repo must be given together")
			}
			if len(c.cfg.Catalog.Manifests) == 0 {
				return errNoManifests
			}
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				ext, err := a.findInstallable(ctx, id)
				if err != nil {
					return err
				}
				release, err := a.resolveRelease(ctx, id, f.version, f.sourceRepo, f.archive)
				if err != nil {
					return err
				}
				result, err := a.installer.Install(ctx, ext, *release)
				if err != nil {
					return err
				}
				return renderInstall(cmd, c.output, result)
			})
		},
	}
	cmd.Flags().StringVar(&f.version, "version", "", "release version to install (default: newest)")
	cmd.Flags().StringVar(&f.archive, "archive", "", "exact archive URL of the release")
	cmd.Flags().StringVar(&f.sourceRepo, "source-repo", "", "source repository of the release")
	return cmd
}

type installOutput struct {
	ID        string `json:"id" yaml:"id"`
	Version   string `json:"version" yaml:"version"`
	Hash      string `json:"hash" yaml:"hash"`
	Verified  bool   `json:"verified" yaml:"verified"`
	Digest    string `json:"digest" yaml:"digest"`
	Path      string `json:"path" yaml:"path"`
	AttemptID string `json:"attempt_id" yaml:"attempt_id"`
	Warning   string `json:"warning,omitempty" yaml:"warning,omitempty"`
}

func renderInstall(cmd *cobra.Command, format string, result *installer.Result) error {
	out := installOutput{
		ID:        result.ID,
		Hash:      result.Hash,
		Verified:  result.Verified,
		Digest:    result.Digest,
		Path:      result.Path,
		AttemptID: result.AttemptID,
	}
	if result.Extension != nil && result.Extension.InstalledRelease != nil {
		out.Version = result.Extension.InstalledRelease.Version
	}
	if result.MetadataErr != nil {
		out.Warning = "install record not saved: " + result.MetadataErr.Error()
	}
	return render(cmd.OutOrStdout(), format, out, func(w io.Writer) {
		row(w, "ID", "VERSION", "HASH", "VERIFIED", "PATH")
		row(w, out.ID, orDash(out.Version), out.Hash, out.Verified, out.Path)
		if out.Warning != "" {
			row(w, "warning: "+out.Warning)
		}
	})
}

func newUninstallCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall <id>",
		Short: "Remove every installed copy of an extension",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.installer.Uninstall(ctx, args[0]); err != nil {
					return err
				}
				cmd.Printf("uninstalled %s\n", args[0])
				return nil
			})
		},
	}
}

func newListCmd(c *cli) *cobra.Command {
	var valid bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List extensions present on disk",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.restoreUpgrades(ctx); err != nil {
					return err
				}
				list := a.registry.Extensions
				if valid {
					list = a.registry.Valid
				}
				exts, err := list(ctx)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), c.output, exts, func(w io.Writer) {
					row(w, "ID", "NAME", "VALID", "ADMIN", "HASH")
					for _, e := range exts {
						row(w, e.ID, orDash(e.Name), e.Valid, e.AdminOnly, orDash(e.Hash))
					}
				})
			})
		},
	}
	cmd.Flags().BoolVar(&valid, "valid", false, "only list extensions with a readable descriptor")
	return cmd
}

type routingOutput struct {
	Version     uint64   `json:"version" yaml:"version"`
	Disabled    []string `json:"disabled" yaml:"disabled"`
	AdminOnly   []string `json:"admin_only" yaml:"admin_only"`
	Deactivated []string `json:"deactivated" yaml:"deactivated"`
	Upgraded    []string `json:"upgraded" yaml:"upgraded"`
}

func newRoutingCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "routing",
		Short: "Show the routing lists, including restored upgrades",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.restoreUpgrades(ctx); err != nil {
					return err
				}
				snap := a.state.Snapshot()
				out := routingOutput{
					Version:     snap.Version,
					Disabled:    snap.Disabled,
					AdminOnly:   snap.AdminOnly,
					Deactivated: snap.Deactivated,
					Upgraded:    snap.Upgraded,
				}
				return render(cmd.OutOrStdout(), c.output, out, func(w io.Writer) {
					row(w, "LIST", "ENTRIES")
					row(w, "disabled", orDash(strings.Join(out.Disabled, ",")))
					row(w, "admin_only", orDash(strings.Join(out.AdminOnly, ",")))
					row(w, "deactivated", orDash(strings.Join(out.Deactivated, ",")))
					row(w, "upgraded", orDash(strings.Join(out.Upgraded, ",")))
				})
			})
		},
	}
}
