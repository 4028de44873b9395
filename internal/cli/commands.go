package cli

import (
	"github.com/BartekS5/movielens-etl/internal/etl"
	"github.com/spf13/cobra"
)

type RunOptions struct {
	BatchSize   int
	BatchPolicy string
}

func NewRunCmd(root *rootOptions) *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full ETL: items, then users, then ratings",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.BatchSize > 0 {
				root.cfg.ETL.BatchSize = opts.BatchSize
			}
			if opts.BatchPolicy != "" {
				root.cfg.ETL.BatchPolicy = opts.BatchPolicy
			}
			if err := root.cfg.Validate(); err != nil {
				return err
			}
			return runETL(cmd.Context(), root.cfg, cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVarP(&opts.BatchSize, "batch-size", "b", 0, "Interaction batch size (overrides etl.batch_size)")
	cmd.Flags().StringVarP(&opts.BatchPolicy, "policy", "p", "", "Failed batch policy: atomic or per-row")

	return cmd
}

func NewCheckCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check that the object store and the database are reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd.Context(), root.cfg, cmd.OutOrStdout())
		},
	}
}

func NewCountsCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "counts",
		Short: "Print the row count of every table in the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCounts(cmd.Context(), root.cfg, cmd.OutOrStdout())
		},
	}
}

func NewInitDBCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init-db",
		Short: "Create the items, actors and interactions tables if missing",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInitDB(cmd.Context(), root.cfg)
		},
	}
}

type SeedOptions struct {
	SourceDir string
}

func NewSeedCmd(root *rootOptions) *cobra.Command {
	opts := &SeedOptions{}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Upload u.item, u.user and u.data from a local directory to the object store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), root.cfg, opts.SourceDir)
		},
	}

	cmd.Flags().StringVarP(&opts.SourceDir, "source-dir", "s", "", "Directory containing "+seedFileList())
	cmd.MarkFlagRequired("source-dir")

	return cmd
}

type ServeOptions struct {
	Addr string
}

func NewServeCmd(root *rootOptions) *cobra.Command {
	opts := &ServeOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the ETL over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Addr != "" {
				root.cfg.HTTP.Addr = opts.Addr
			}
			return runServe(cmd.Context(), root.cfg)
		},
	}

	cmd.Flags().StringVarP(&opts.Addr, "addr", "a", "", "Listen address (overrides http.addr)")

	return cmd
}

// seedFiles maps the local MovieLens file names to their object keys.
var seedFiles = []struct {
	File string
	Key  string
}{
	{"u.item", etl.ItemsKey},
	{"u.user", etl.ActorsKey},
	{"u.data", etl.InteractionsKey},
}

func seedFileList() string {
	s := ""
	for i, f := range seedFiles {
		if i > 0 {
			s += ", "
		}
		s += f.File
	}
	return s
}
