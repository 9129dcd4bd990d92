package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/sos-priors/internal/catalog"
	"github.com/sells-group/sos-priors/internal/config"
	"github.com/sells-group/sos-priors/internal/sword"
)

var reachesCmd = &cobra.Command{
	Use:   "reaches",
	Short: "Manage the canonical reach store",
}

var reachesLoadCmd = &cobra.Command{
	Use:   "load",
	Short: "Seed reach ids and geometry from a SWORD reach shapefile",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		shpPath, _ := cmd.Flags().GetString("shp")
		continent, _ := cmd.Flags().GetString("continent")

		res, err := sword.ParseReaches(shpPath, continent)
		if err != nil {
			return err
		}

		st, err := openStore(ctx, config.ModeLoad)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.UpsertReaches(ctx, res.Reaches)
		if err != nil {
			return eris.Wrap(err, "reaches load")
		}

		zap.L().Info("reaches loaded",
			zap.String("continent", continent),
			zap.Int64("rows", n),
			zap.Int("skipped", res.Skipped),
		)
		fmt.Fprintf(os.Stdout, "Loaded %d reaches for %s (%d skipped)\n", len(res.Reaches), continent, res.Skipped)
		return nil
	},
}

var reachesBaselineCmd = &cobra.Command{
	Use:   "import-baseline",
	Short: "Import model baseline statistics from CSV",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		path, _ := cmd.Flags().GetString("csv")
		continent, _ := cmd.Flags().GetString("continent")

		f, err := os.Open(path)
		if err != nil {
			return eris.Wrapf(err, "open %s", path)
		}
		defer f.Close() //nolint:errcheck

		canonical, skipped, err := catalog.ReadBaseline(ctx, f, continent, cfg.Fill.Float)
		if err != nil {
			return err
		}
		for _, s := range skipped {
			zap.L().Warn("baseline row skipped", zap.String("file", path), zap.Error(s))
		}

		st, err := openStore(ctx, config.ModeLoad)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.SaveCanonical(ctx, canonical); err != nil {
			return eris.Wrap(err, "reaches import-baseline")
		}
		fmt.Fprintf(os.Stdout, "Imported baseline for %d reaches (%d rows skipped)\n", canonical.Len(), len(skipped))
		return nil
	},
}

func init() {
	reachesLoadCmd.Flags().String("shp", "", "path to a SWORD reach shapefile")
	reachesLoadCmd.Flags().String("continent", "", "continent code of the shapefile")
	_ = reachesLoadCmd.MarkFlagRequired("shp")
	_ = reachesLoadCmd.MarkFlagRequired("continent")

	reachesBaselineCmd.Flags().String("csv", "", "baseline statistics CSV")
	reachesBaselineCmd.Flags().String("continent", "", "continent code of the baseline")
	_ = reachesBaselineCmd.MarkFlagRequired("csv")
	_ = reachesBaselineCmd.MarkFlagRequired("continent")

	reachesCmd.AddCommand(reachesLoadCmd)
	reachesCmd.AddCommand(reachesBaselineCmd)
	rootCmd.AddCommand(reachesCmd)
}
