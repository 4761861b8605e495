package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/Salamek/netkeeper/internal/config"
	"github.com/Salamek/netkeeper/internal/daemonrun"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var logDir string
	var configProd bool

	cmd := &cobra.Command{
		Use:          "run",
		Short:        "Run the netkeeper daemon in the foreground",
		Annotations:  map[string]string{"skipConfigLoad": "true"},
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			profile := config.ProfileDev
			if configProd {
				profile = config.ProfileProduction
			}
			var path string
			if ctx.configFlag != nil {
				path = strings.TrimSpace(*ctx.configFlag)
			}
			cfg, resolvedPath, _, err := config.LoadWithProfile(path, profile)
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				ConfigPath:     resolvedPath,
				LogDirOverride: logDir,
			})
		},
	}
	cmd.Flags().StringVar(&logDir, "log-dir", "", "Write run logs to this directory (console shows errors only)")
	cmd.Flags().BoolVar(&configProd, "config-prod", false, "Start from the production defaults profile")
	return cmd
}
