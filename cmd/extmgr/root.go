// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/holomush/extmgr/internal/config"
	"github.com/holomush/extmgr/internal/logging"
	"github.com/holomush/extmgr/internal/xdg"
)

// cli carries state shared by every subcommand.
type cli struct {
	configFile string
	output     string
	cfg        *config.Config
	deps       *Deps
}

// NewRootCmd creates the root command for the extmgr CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd(nil)
}

func newRootCmd(deps *Deps) *cobra.Command {
	c := &cli{deps: deps.withDefaults()}

	cmd := &cobra.Command{
		Use:   "extmgr",
		Short: "extmgr - live extension lifecycle manager",
		Long: `extmgr discovers extensions advertised by remote catalogs, installs
verified release archives into content-addressed directories and reroutes
live API traffic to newly installed code without a restart.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.load(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&c.configFile, "config", "", "config file path (default: XDG_CONFIG_HOME/extmgr/config.yaml)")
	flags.StringVarP(&c.output, "output", "o", outputTable, "output format (table, json, yaml)")
	config.RegisterFlags(flags)

	cmd.AddCommand(
		newServeCmd(c),
		newCatalogCmd(c),
		newReleasesCmd(c),
		newInstallCmd(c),
		newUninstallCmd(c),
		newListCmd(c),
		newRoutingCmd(c),
		newMigrateCmd(c),
	)
	return cmd
}

// load resolves configuration and installs the default logger.
func (c *cli) load(cmd *cobra.Command) error {
	if err := validateOutput(c.output); err != nil {
		return err
	}
	path, explicit := c.configFile, c.configFile != ""
	if !explicit {
		path = xdg.ConfigFile()
	}
	cfg, err := config.Load(path, explicit, cmd.Flags())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.cfg = cfg

	logging.SetDefault(logging.Options{
		Service: "extmgr",
		Version: version,
		Format:  cfg.Log.Format,
		Level:   logging.ParseLevel(cfg.Log.Level),
		Writer:  cmd.ErrOrStderr(),
	})
	return nil
}
