package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/grants-cli/internal/model"
)

var (
	statusHours int
	statusLimit int
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show catalog size and recent changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, "query")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		total, err := st.CountOpportunities(ctx)
		if err != nil {
			return eris.Wrap(err, "status: count")
		}
		since := time.Now().UTC().Add(-time.Duration(statusHours) * time.Hour)
		changes, err := st.RecentChanges(ctx, since, statusLimit)
		if err != nil {
			return eris.Wrap(err, "status: recent changes")
		}

		formatStatus(os.Stdout, total, statusHours, changes)
		return nil
	},
}

func init() {
	statusCmd.Flags().IntVar(&statusHours, "hours", 24, "look-back window for recent changes")
	statusCmd.Flags().IntVar(&statusLimit, "limit", 10, "maximum changes to list")
	rootCmd.AddCommand(statusCmd)
}

// formatStatus writes the catalog total and a table of recent changes to out.
func formatStatus(out io.Writer, total, hours int, changes []model.RecentChange) {
	_, _ = fmt.Fprintf(out, "Opportunities: %d\n", total)
	if len(changes) == 0 {
		_, _ = fmt.Fprintf(out, "No changes in the last %dh\n", hours)
		return
	}
	_, _ = fmt.Fprintf(out, "Last updated:  %s\n\n", changes[0].ChangeDate.Format("2006-01-02 15:04"))

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "DATE\tTYPE\tSOURCE\tAGENCY\tTITLE")
	_, _ = fmt.Fprintln(w, "----\t----\t------\t------\t-----")
	for _, c := range changes {
		agency := "-"
		if c.AgencyName != nil {
			agency = truncate(*c.AgencyName, 40)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			c.ChangeDate.Format("2006-01-02 15:04"),
			c.ChangeType,
			c.Source,
			agency,
			truncate(c.Title, 60),
		)
	}
	_ = w.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
