// Package cli implements the CLI adapter for ocistore.
// This package provides Cobra commands that delegate to the app layer.
package cli

import (
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/bnema/ocistore/internal/app"
	"github.com/bnema/ocistore/pkg/version"
)

// NewRootCmd creates the root command for the ocistore CLI.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ocistore",
		Short: "ocistore - An OCI Distribution registry",
		Long: `ocistore is a self-contained OCI Distribution registry. It stores blobs
and manifests on the filesystem, in memory, in SQLite or in a Starskey
LSM database, and serves the /v2/ API used by docker, podman and oras.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// newServeCmd creates the serve command.
func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Start the registry server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Run(cmd.Context(), configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	return cmd
}

// newConfigCmd creates the config command, which validates configuration
// and prints the values the server would run with.
func newConfigCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Validate and print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig(configPath)
			if err != nil {
				return err
			}
			limits, err := cfg.Limits()
			if err != nil {
				return err
			}

			cmd.Printf("listen:            :%d\n", cfg.Server.Port)
			cmd.Printf("hostname:          %s\n", cfg.Server.Hostname)
			cmd.Printf("storage:           %s (%s)\n", cfg.Storage.Backend, cfg.StorageDir())
			cmd.Printf("max manifest size: %s\n", humanize.IBytes(uint64(limits.MaxManifestSize)))
			cmd.Printf("max chunk size:    %s\n", humanize.IBytes(uint64(limits.MaxChunkSize)))
			cmd.Printf("strict digests:    %t\n", cfg.Registry.StrictManifestDigest)
			cmd.Printf("rate limit:        %t\n", cfg.API.RateLimit.Enabled)
			cmd.Printf("telemetry:         %t\n", cfg.Telemetry.Enabled)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	return cmd
}

// newVersionCmd creates the version command.
func newVersionCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			if short {
				cmd.Println(version.Version())
				return
			}
			cmd.Printf("ocistore %s\n", version.Version())
			cmd.Printf("Commit: %s\n", version.Commit())
			cmd.Printf("Build Date: %s\n", version.BuildDate())
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "Show only version number")

	return cmd
}

// SetVersionInfo sets the version information for the CLI.
func SetVersionInfo(v, commit, date string) {
	version.Set(v, commit, date)
}
