package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/sos-priors/internal/calendar"
	"github.com/sells-group/sos-priors/internal/config"
	"github.com/sells-group/sos-priors/internal/model"
	"github.com/sells-group/sos-priors/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect priors update history",
	Long:  "Commands for listing and viewing priors update runs and reach provenance.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List priors update runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, config.ModeLoad)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		continent, _ := cmd.Flags().GetString("continent")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Continent: continent,
			Status:    model.RunStatus(status),
			Limit:     limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show the summary of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, config.ModeLoad)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(run)
		}
		formatRunSummary(os.Stdout, run)
		return nil
	},
}

// -- runs provenance --

var runsProvenanceCmd = &cobra.Command{
	Use:   "provenance <reach-id>",
	Short: "Show which source last wrote a reach",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var reachID int64
		if _, err := fmt.Sscan(args[0], &reachID); err != nil {
			return eris.Wrapf(err, "reach id %q", args[0])
		}

		st, err := openStore(ctx, config.ModeLoad)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		p, err := st.LoadProvenance(ctx, reachID)
		if err != nil {
			return eris.Wrap(err, "runs provenance")
		}
		formatProvenance(os.Stdout, p)
		return nil
	},
}

func init() {
	runsListCmd.Flags().String("status", "", "filter by run status (running, complete, failed)")
	runsListCmd.Flags().String("continent", "", "filter by continent")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsShowCmd.Flags().Bool("json", false, "print the stored run as JSON")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsProvenanceCmd)
	rootCmd.AddCommand(runsCmd)
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tCONTINENT\tSTATUS\tOVERWRITTEN\tBAD\tSTARTED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t---------\t------\t-----------\t---\t-------\t--------")

	for _, r := range runs {
		dur := "-"
		if r.CompletedAt != nil {
			dur = r.CompletedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		overwritten, bad := "-", "-"
		if r.Summary != nil {
			overwritten = fmt.Sprint(r.Summary.Overwritten)
			bad = fmt.Sprint(r.Summary.BadPriors)
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(r.ID),
			r.Continent,
			r.Status,
			overwritten,
			bad,
			r.StartedAt.Format("2006-01-02 15:04"),
			dur,
		)
	}
	_ = w.Flush()
}

// formatRunSummary writes one run with its per-source counts to w.
func formatRunSummary(out io.Writer, run *model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Run:\t%s\n", run.ID)
	_, _ = fmt.Fprintf(w, "Continent:\t%s\n", run.Continent)
	_, _ = fmt.Fprintf(w, "Status:\t%s\n", run.Status)
	if run.Error != "" {
		_, _ = fmt.Fprintf(w, "Error:\t%s\n", run.Error)
	}

	s := run.Summary
	if s == nil {
		_ = w.Flush()
		return
	}
	if s.DryRun {
		_, _ = fmt.Fprintln(w, "Mode:\tdry run (nothing written)")
	}
	if s.RunType != "" {
		_, _ = fmt.Fprintf(w, "Run type:\t%s\n", s.RunType)
	}
	_, _ = fmt.Fprintf(w, "Reaches:\t%d\n", s.Reaches)
	_, _ = fmt.Fprintf(w, "Overwritten:\t%d\n", s.Overwritten)
	_, _ = fmt.Fprintf(w, "Bad priors:\t%d\n", s.BadPriors)
	if s.Coverage.First != nil && s.Coverage.Last != nil {
		_, _ = fmt.Fprintf(w, "Time coverage:\t%s to %s\n",
			s.Coverage.First.Format(calendar.DateLayout), s.Coverage.Last.Format(calendar.DateLayout))
	} else {
		_, _ = fmt.Fprintln(w, "Time coverage:\tNO TIME DATA")
	}
	d := s.Diagnostics
	_, _ = fmt.Fprintf(w, "Observations:\t%d (rejected %d, out of range %d, non-finite %d, parse errors %d)\n",
		d.Observations, d.Rejected, d.OutOfRange, d.NonFinite, d.ParseErrors)
	_ = w.Flush()

	if len(s.Sources) == 0 {
		return
	}
	_, _ = fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SOURCE\tGAUGES\tFAILED\tEMPTY\tCANDIDATES\tUNMATCHED\tNOT_CAL\tGUARDED\tOVERWRITTEN\tBAD")
	for _, src := range s.Sources {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\n",
			src.Source, src.Gauges, src.FetchFailed, src.Empty, src.Candidates,
			src.Unmatched, src.NotCAL, src.Guarded, src.Overwritten, src.BadPriors)
	}
	_ = w.Flush()
}

// formatProvenance writes the current provenance of one reach to w.
func formatProvenance(out io.Writer, p *model.ReachProvenance) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Reach:\t%d\n", p.ReachID)
	_, _ = fmt.Fprintf(w, "Run:\t%s\n", p.RunID)
	if p.Overwritten {
		_, _ = fmt.Fprintf(w, "Overwritten by:\t%s\n", p.OverwrittenSource)
	} else {
		_, _ = fmt.Fprintln(w, "Overwritten by:\t-")
	}
	if p.BadPrior {
		_, _ = fmt.Fprintf(w, "Bad prior from:\t%s\n", p.BadPriorSource)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
