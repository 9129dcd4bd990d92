package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/sos-priors/internal/model"
	"github.com/sells-group/sos-priors/internal/pipeline"
	"github.com/sells-group/sos-priors/internal/priority"
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Reconcile a continent's priors with current gauge records",
	Long: `Pulls every catalog gauge of the continent from its agency, computes gauge
statistics and applies them to the canonical reach priors in priority order.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		continent, _ := cmd.Flags().GetString("continent")
		all, _ := cmd.Flags().GetBool("all")
		if (continent == "") == !all {
			return eris.New("update: pass exactly one of --continent or --all")
		}

		sources, _ := cmd.Flags().GetStringSlice("sources")
		reuse, _ := cmd.Flags().GetBool("reuse-historic")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		runTypeName, _ := cmd.Flags().GetString("run-type")
		runType, err := pipeline.ParseRunType(runTypeName)
		if err != nil {
			return err
		}
		textfile, _ := cmd.Flags().GetString("metrics-textfile")

		reg := prometheus.NewRegistry()
		env, err := initRunner(ctx, reg)
		if err != nil {
			return err
		}
		defer env.Close()

		continents := []string{continent}
		if all {
			table, err := priority.Load(cfg.PriorityFile)
			if err != nil {
				return err
			}
			continents = table.Continents()
		}

		var failed int
		for _, c := range continents {
			run, err := env.Runner.Run(ctx, pipeline.Options{
				Continent:     c,
				Sources:       sources,
				ReuseHistoric: reuse,
				DryRun:        dryRun,
				RunType:       runType,
			})
			if run != nil {
				formatRunSummary(os.Stdout, run)
			}
			if err != nil {
				failed++
				zap.L().Error("update failed", zap.String("continent", c), zap.Error(err))
				if ctx.Err() != nil {
					break
				}
			}
		}

		if textfile != "" {
			if err := prometheus.WriteToTextfile(textfile, reg); err != nil {
				zap.L().Warn("write metrics textfile", zap.String("path", textfile), zap.Error(err))
			}
		}

		if failed > 0 {
			return fmt.Errorf("update: %d of %d continents failed", failed, len(continents))
		}
		return nil
	},
}

func init() {
	updateCmd.Flags().String("continent", "", "continent code (af, as, eu, na, oc, sa)")
	updateCmd.Flags().Bool("all", false, "update every continent in the priority table")
	updateCmd.Flags().StringSlice("sources", nil, "limit the run to these agencies (e.g. usgs,wsc)")
	updateCmd.Flags().Bool("reuse-historic", false, "reuse stored statistics for historical archives")
	updateCmd.Flags().Bool("dry-run", false, "reconcile without writing to the store")
	updateCmd.Flags().String("run-type", string(model.RunConstrained), "constrained applies priors; unconstrained only stores gauge statistics")
	updateCmd.Flags().String("metrics-textfile", "", "write run metrics in Prometheus text format to this path")
	rootCmd.AddCommand(updateCmd)
}
