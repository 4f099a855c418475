// SPDX-License-Identifier: AGPL-3.0-or-later
package cmd

import (
	"github.com/flowd-org/simctl/internal/configloader"
	"github.com/flowd-org/simctl/internal/paths"
	"github.com/flowd-org/simctl/internal/types"
	"github.com/spf13/cobra"
)

type infoView struct {
	Version      string          `json:"version" yaml:"version"`
	SettingsFile string          `json:"settings_file" yaml:"settings_file"`
	DataDir      string          `json:"data_dir" yaml:"data_dir"`
	Executable   string          `json:"executable" yaml:"executable"`
	Settings     *types.Settings `json:"settings" yaml:"settings"`
}

func NewInfoCmd(a *app) *cobra.Command {
	var jsonOut bool
	c := &cobra.Command{
		Use:   "info",
		Short: "Show the resolved settings and tool directories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settingsFile := a.settingsPath
			if settingsFile == "" {
				settingsFile = paths.SettingsFile()
			}
			v := infoView{
				Version:      Version,
				SettingsFile: settingsFile,
				DataDir:      paths.DataDir(),
				Executable:   configloader.ExecutablePath(a.settings),
				Settings:     a.settings,
			}
			if jsonOut {
				return writeJSON(a.out, v)
			}
			return writeYAML(a.out, v)
		},
	}
	c.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON instead of YAML")
	return c
}
