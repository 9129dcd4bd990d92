package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/sos-priors/internal/catalog"
	"github.com/sells-group/sos-priors/internal/config"
)

var gaugesCmd = &cobra.Command{
	Use:   "gauges",
	Short: "Manage the gauge catalog",
}

var gaugesLoadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load gauge-to-reach links from CSV",
	Long: `Reads agency, site_id and reach_id columns, plus optional cal, historical and
continent columns, and upserts them into the gauge catalog.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		path, _ := cmd.Flags().GetString("csv")
		continent, _ := cmd.Flags().GetString("continent")

		f, err := os.Open(path)
		if err != nil {
			return eris.Wrapf(err, "open %s", path)
		}
		defer f.Close() //nolint:errcheck

		gauges, skipped, err := catalog.ReadGauges(ctx, f, continent)
		if err != nil {
			return err
		}
		for _, s := range skipped {
			zap.L().Warn("gauge row skipped", zap.String("file", path), zap.Error(s))
		}

		st, err := openStore(ctx, config.ModeLoad)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.UpsertGauges(ctx, gauges)
		if err != nil {
			return eris.Wrap(err, "gauges load")
		}
		zap.L().Info("gauges loaded", zap.Int64("rows", n), zap.Int("skipped", len(skipped)))
		fmt.Fprintf(os.Stdout, "Loaded %d gauges (%d rows skipped)\n", len(gauges), len(skipped))
		return nil
	},
}

func init() {
	gaugesLoadCmd.Flags().String("csv", "", "gauge catalog CSV")
	gaugesLoadCmd.Flags().String("continent", "", "continent for rows without a continent column")
	_ = gaugesLoadCmd.MarkFlagRequired("csv")

	gaugesCmd.AddCommand(gaugesLoadCmd)
	rootCmd.AddCommand(gaugesCmd)
}
