package main

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/grants-cli/internal/export"
	"github.com/sells-group/grants-cli/internal/store"
)

var (
	exportOut      string
	exportFilter   store.ListFilter
	exportContacts bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write opportunities to an xlsx workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, "query")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		now := time.Now().UTC()
		filter := exportFilter
		filter.Now = now

		opps, err := export.Query(ctx, st, filter, exportContacts)
		if err != nil {
			return err
		}
		if err := export.WriteFile(exportOut, opps, now); err != nil {
			return err
		}

		zap.L().Info("export complete", zap.String("path", exportOut), zap.Int("opportunities", len(opps)))
		return nil
	},
}

func init() {
	f := exportCmd.Flags()
	f.StringVar(&exportOut, "out", "grants.xlsx", "output workbook path")
	f.StringVar(&exportFilter.Search, "search", "", "match title, description, or agency name")
	f.StringVar(&exportFilter.Agency, "agency", "", "agency code")
	f.StringVar(&exportFilter.Category, "category", "", "funding activity category code")
	f.StringVar(&exportFilter.FundingType, "funding-type", "", "funding instrument type code")
	f.StringVar(&exportFilter.Status, "status", "", "status (\"active\" means still open)")
	f.BoolVar(&exportContacts, "contacts", true, "include a contacts sheet")
	rootCmd.AddCommand(exportCmd)
}
