// Package cli handles the command-line interface logic
// using the Cobra library.
package cli

import (
	"github.com/BartekS5/movielens-etl/internal/config"
	"github.com/BartekS5/movielens-etl/pkg/logger"
	"github.com/spf13/cobra"
)

// rootOptions is shared by every sub-command.
type rootOptions struct {
	ConfigFile string
	cfg        *config.Config
}

// NewRootCmd creates the main command and attaches all sub-commands.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "movielens-etl",
		Short: "Load MovieLens items, users and ratings from an object store into SQL",
		Long: `movielens-etl extracts the MovieLens u.item, u.user and u.data files from an
object store (S3/MinIO, GridFS or a local directory), parses and validates them,
and loads them into a relational database (PostgreSQL, SQL Server or SQLite).`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(opts.ConfigFile)
			if err != nil {
				return err
			}
			if err := logger.InitLogger(cfg.Log.File, cfg.Log.Level); err != nil {
				return err
			}
			opts.cfg = cfg
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logger.Close()
		},
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.ConfigFile, "config", "c", "", "Path to a config file (yaml, json or toml)")

	rootCmd.AddCommand(
		NewRunCmd(opts),
		NewCheckCmd(opts),
		NewCountsCmd(opts),
		NewInitDBCmd(opts),
		NewSeedCmd(opts),
		NewServeCmd(opts),
	)

	return rootCmd
}
