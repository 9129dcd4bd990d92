package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/sos-priors/internal/priority"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Show the source priority order per continent",
	RunE: func(cmd *cobra.Command, _ []string) error {
		table, err := priority.Load(cfg.PriorityFile)
		if err != nil {
			return err
		}
		continent, _ := cmd.Flags().GetString("continent")
		return formatPriority(os.Stdout, table, continent)
	},
}

// formatPriority lists each continent's entries in application order.
// Later entries overwrite earlier ones.
func formatPriority(out io.Writer, table priority.Table, continent string) error {
	continents := table.Continents()
	if continent != "" {
		if _, err := table.For(continent); err != nil {
			return err
		}
		continents = []string{continent}
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CONTINENT\tORDER\tSOURCE\tCODE")
	_, _ = fmt.Fprintln(w, "---------\t-----\t------\t----")
	for _, c := range continents {
		for i, e := range table[c] {
			_, _ = fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", c, i+1, e.Name(), e.SourceCode())
		}
	}
	return w.Flush()
}

func init() {
	sourcesCmd.Flags().String("continent", "", "only show this continent")
	rootCmd.AddCommand(sourcesCmd)
}
