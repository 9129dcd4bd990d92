// Package catalog reads the gauge catalog and model baseline CSV files that
// seed the store.
package catalog

import (
	"context"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/sos-priors/internal/agency"
	"github.com/sells-group/sos-priors/internal/fetcher"
	"github.com/sells-group/sos-priors/internal/model"
)

// RowError describes a skipped input row.
type RowError struct {
	Line int
	Err  error
}

func (e RowError) Error() string { return fmt.Sprintf("line %d: %v", e.Line, e.Err) }

// header maps column names to indices, case-insensitively.
type header map[string]int

func readRows(ctx context.Context, r io.Reader) (header, [][]string, error) {
	headerCh := make(chan []string, 1)
	rows, err := fetcher.CollectCSV(ctx, r, fetcher.CSVOptions{
		HasHeader: true,
		HeaderCh:  headerCh,
		Comment:   '#',
		TrimSpace: true,
	})
	if err != nil {
		return nil, nil, eris.Wrap(err, "catalog: read csv")
	}

	var cols []string
	select {
	case cols = <-headerCh:
	default:
		return nil, nil, eris.New("catalog: empty file")
	}

	h := make(header, len(cols))
	for i, c := range cols {
		h[strings.ToLower(strings.TrimSpace(c))] = i
	}
	return h, rows, nil
}

func (h header) require(names ...string) error {
	var missing []string
	for _, n := range names {
		if _, ok := h[n]; !ok {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return eris.Errorf("catalog: missing columns %s", strings.Join(missing, ", "))
	}
	return nil
}

// get returns the named cell, or "" when the column or cell is absent.
func (h header) get(row []string, name string) string {
	i, ok := h[name]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}

// ReadGauges parses a gauge catalog. Required columns are agency, site_id
// and reach_id; cal, historical and continent are optional. Rows without a
// continent take the given default. An empty reach_id leaves the gauge
// unmapped.
func ReadGauges(ctx context.Context, r io.Reader, continent string) ([]model.Gauge, []RowError, error) {
	h, rows, err := readRows(ctx, r)
	if err != nil {
		return nil, nil, err
	}
	if err := h.require("agency", "site_id", "reach_id"); err != nil {
		return nil, nil, err
	}

	var gauges []model.Gauge
	var skipped []RowError
	for i, row := range rows {
		g, err := parseGauge(h, row, continent)
		if err != nil {
			// line 1 is the header
			skipped = append(skipped, RowError{Line: i + 2, Err: err})
			continue
		}
		gauges = append(gauges, g)
	}
	return gauges, skipped, nil
}

func parseGauge(h header, row []string, continent string) (model.Gauge, error) {
	code, err := agency.ParseCode(h.get(row, "agency"))
	if err != nil {
		return model.Gauge{}, err
	}

	g := model.Gauge{
		Agency:    code.Key(),
		SiteID:    h.get(row, "site_id"),
		Continent: strings.ToLower(h.get(row, "continent")),
	}
	if g.SiteID == "" {
		return model.Gauge{}, eris.New("empty site_id")
	}
	if g.Continent == "" {
		g.Continent = continent
	}
	if g.Continent == "" {
		return model.Gauge{}, eris.New("no continent")
	}

	if raw := h.get(row, "reach_id"); raw != "" {
		if g.ReachID, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return model.Gauge{}, eris.Wrapf(err, "reach_id %q", raw)
		}
	}

	switch strings.ToUpper(h.get(row, "cal")) {
	case "", "1", "CAL":
		g.Calibration = model.CAL
	case "0", "VAL":
		g.Calibration = model.VAL
	default:
		return model.Gauge{}, eris.Errorf("cal %q", h.get(row, "cal"))
	}

	if raw := h.get(row, "historical"); raw != "" {
		if g.Historical, err = strconv.ParseBool(raw); err != nil {
			return model.Gauge{}, eris.Wrapf(err, "historical %q", raw)
		}
	}
	return g, nil
}

// baselineColumns returns the statistic columns of a baseline file in
// storage order.
func baselineColumns() []string {
	cols := []string{"mean_q", "min_q", "max_q"}
	for m := 1; m <= model.Months; m++ {
		cols = append(cols, fmt.Sprintf("monthly_q_%d", m))
	}
	for p := 1; p <= model.FDCPoints; p++ {
		cols = append(cols, fmt.Sprintf("fdq_%d", p))
	}
	return append(cols, "two_year_return_q")
}

// ReadBaseline parses model baseline statistics for one continent. Cells
// that are empty, "nan" or equal to fill read as missing.
func ReadBaseline(ctx context.Context, r io.Reader, continent string, fill float64) (*model.Canonical, []RowError, error) {
	h, rows, err := readRows(ctx, r)
	if err != nil {
		return nil, nil, err
	}
	cols := baselineColumns()
	if err := h.require(append([]string{"reach_id"}, cols...)...); err != nil {
		return nil, nil, err
	}

	c := &model.Canonical{Continent: continent}
	var skipped []RowError
	for i, row := range rows {
		prior, err := parseBaseline(h, row, cols, fill)
		if err != nil {
			skipped = append(skipped, RowError{Line: i + 2, Err: err})
			continue
		}
		c.Reaches = append(c.Reaches, prior)
	}
	return c, skipped, nil
}

func parseBaseline(h header, row, cols []string, fill float64) (model.CanonicalReachPrior, error) {
	var p model.CanonicalReachPrior
	id, err := strconv.ParseInt(h.get(row, "reach_id"), 10, 64)
	if err != nil || id <= 0 {
		return p, eris.Errorf("reach_id %q", h.get(row, "reach_id"))
	}
	p.ReachID = id

	vals := make([]float64, len(cols))
	for i, col := range cols {
		raw := h.get(row, col)
		if raw == "" {
			vals[i] = math.NaN()
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return p, eris.Wrapf(err, "%s %q", col, raw)
		}
		if v == fill {
			v = math.NaN()
		}
		vals[i] = v
	}

	s := &p.Statistics
	s.MeanQ, s.MinQ, s.MaxQ = vals[0], vals[1], vals[2]
	copy(s.MonthlyQ[:], vals[3:3+model.Months])
	copy(s.FlowDurationQ[:], vals[3+model.Months:3+model.Months+model.FDCPoints])
	s.TwoYearReturnQ = vals[len(vals)-1]
	return p, nil
}
