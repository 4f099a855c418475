// SPDX-License-Identifier: AGPL-3.0-or-later
package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/flowd-org/simctl/internal/configloader"
	"github.com/flowd-org/simctl/internal/engine"
	"github.com/flowd-org/simctl/internal/modules"
	"github.com/flowd-org/simctl/internal/paths"
	"github.com/flowd-org/simctl/internal/types"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func NewInitCmd(a *app) *cobra.Command {
	var force bool
	c := &cobra.Command{
		Use:   "init",
		Short: "Write a settings file and create the data and jobs directories",
		Example: `  simctl init --root /opt/cgenie --data ~/ctoaster-data --jobs ~/ctoaster-jobs`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationNoSettings: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := &types.Settings{}
			configloader.ApplyEnv(cfg, os.LookupEnv)
			a.applyFlags(cfg)
			if cfg.Root == "" {
				return errors.New("--root is required: the model tree holding src/ and data/")
			}
			configloader.ApplyDefaults(cfg)

			path := a.settingsPath
			if path == "" {
				path = paths.SettingsFile()
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to replace it)", path)
			}

			// create all folders
			dirs := []string{
				cfg.Jobs,
				filepath.Join(cfg.Data, engine.BaseConfigsDir),
				filepath.Join(cfg.Data, engine.UserConfigsDir),
				filepath.Join(cfg.Data, engine.FullConfigsDir),
				filepath.Join(cfg.Data, engine.ForcingsDir),
				filepath.Dir(path),
			}
			for _, d := range dirs {
				if err := os.MkdirAll(d, 0o755); err != nil {
					return fmt.Errorf("creating %s: %w", d, err)
				}
			}

			// Only the locations are pinned; everything else keeps tracking the defaults.
			out := types.Settings{Root: cfg.Root, Data: cfg.Data, Jobs: cfg.Jobs, Version: cfg.Version}
			body, err := yaml.Marshal(out)
			if err != nil {
				return err
			}
			if err := os.WriteFile(path, body, 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", path, err)
			}

			if _, err := os.Stat(filepath.Join(cfg.Root, "src", modules.TableFile)); err != nil {
				fmt.Fprintf(a.err, "[warn] %s does not look like a model tree (no src/module-info.csv)\n", cfg.Root)
			}
			fmt.Fprintf(a.out, "[OK] wrote %s\n", path)
			fmt.Fprintf(a.out, "  data: %s\n  jobs: %s\n", cfg.Data, cfg.Jobs)
			return nil
		},
	}
	c.Flags().BoolVar(&force, "force", false, "Replace an existing settings file")
	return c
}
