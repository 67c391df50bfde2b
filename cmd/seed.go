package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/grants-cli/internal/collector"
	"github.com/sells-group/grants-cli/internal/seed"
)

var seedFile string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load fixture opportunities from a YAML file",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, "query")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		res, err := seed.LoadFile(ctx, collector.NewReconciler(st, seed.Source), seedFile)
		if err != nil {
			return err
		}
		zap.L().Info("seeded opportunities",
			zap.Int("created", res.Created),
			zap.Int("updated", res.Updated),
			zap.Int("failed", res.Failed),
		)
		if res.Failed > 0 {
			return eris.Errorf("%d fixture(s) failed to load", res.Failed)
		}
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedFile, "file", "seeds.yaml", "seed file to load")
	rootCmd.AddCommand(seedCmd)
}
