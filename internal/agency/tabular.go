package agency

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/sos-priors/internal/config"
	"github.com/sells-group/sos-priors/internal/fetcher"
	"github.com/sells-group/sos-priors/internal/model"
)

// TabularAdapter reads a per-country export file (CSV or XLSX) whose column
// layout is described by configuration.
type TabularAdapter struct {
	code Code
	cfg  config.TabularConfig
	op   Opener
}

// NewTabular creates an adapter for a tabular export agency.
func NewTabular(code Code, cfg config.TabularConfig, op Opener) *TabularAdapter {
	return &TabularAdapter{code: code, cfg: cfg, op: op}
}

// Code implements Adapter.
func (a *TabularAdapter) Code() Code { return a.code }

func (a *TabularAdapter) siteID(id string) string {
	if a.cfg.SitePad > 0 && len(id) < a.cfg.SitePad {
		return strings.Repeat("0", a.cfg.SitePad-len(id)) + id
	}
	return id
}

func (a *TabularAdapter) format(location string) string {
	if a.cfg.Format != "" {
		return a.cfg.Format
	}
	p := location
	if u, err := url.Parse(location); err == nil && u.Path != "" {
		p = u.Path
	}
	if strings.EqualFold(path.Ext(p), ".xlsx") {
		return "xlsx"
	}
	return "csv"
}

func (a *TabularAdapter) rows(ctx context.Context, location string) ([][]string, error) {
	if a.format(location) == "xlsx" {
		data, err := a.op.ReadAll(ctx, location)
		if err != nil {
			return nil, err
		}
		return fetcher.ReadXLSXBytes(data, fetcher.XLSXOptions{SkipRows: a.cfg.SkipRows})
	}

	rc, err := a.op.Open(ctx, location)
	if err != nil {
		return nil, err
	}
	defer rc.Close() //nolint:errcheck

	opts := fetcher.CSVOptions{LazyQuotes: true, TrimSpace: true}
	if a.cfg.Delimiter != "" {
		opts.Delimiter = []rune(a.cfg.Delimiter)[0]
	}
	rows, err := fetcher.CollectCSV(ctx, rc, opts)
	if err != nil {
		return nil, err
	}
	if a.cfg.SkipRows >= len(rows) {
		return nil, nil
	}
	return rows[a.cfg.SkipRows:], nil
}

// Fetch implements Adapter. The first row after SkipRows is the header.
func (a *TabularAdapter) Fetch(ctx context.Context, site Site) (*model.Batch, error) {
	name := a.code.Key()
	if a.cfg.URL == "" {
		return nil, eris.Errorf("%s: no url configured", name)
	}

	id := a.siteID(site.ID)
	rows, err := a.rows(ctx, expand(a.cfg.URL, id, site))
	if err != nil {
		return nil, eris.Wrapf(err, "%s: fetch site %s", name, id)
	}

	batch := &model.Batch{SiteID: site.ID}
	if len(rows) == 0 {
		return batch, nil
	}

	header := rows[0]
	dateCol := columnIndex(header, a.cfg.DateColumn)
	valueCol := columnIndex(header, a.cfg.DischargeColumn)
	if dateCol < 0 || valueCol < 0 {
		return nil, eris.Errorf("%s: site %s: header %v lacks %q or %q", name, id, header, a.cfg.DateColumn, a.cfg.DischargeColumn)
	}
	qualCol := -1
	if a.cfg.QualityColumn != "" {
		if qualCol = columnIndex(header, a.cfg.QualityColumn); qualCol < 0 {
			return nil, eris.Errorf("%s: site %s: header %v lacks %q", name, id, header, a.cfg.QualityColumn)
		}
	}

	scale := a.cfg.Scale
	if scale == 0 {
		scale = 1
	}

	for i, row := range rows[1:] {
		line := a.cfg.SkipRows + i + 2
		if len(row) <= max(dateCol, valueCol, qualCol) {
			batch.AddError(line, "row", fmt.Sprint(row), eris.New("short row"))
			continue
		}
		day, err := parseDate(row[dateCol], a.cfg.DateLayout)
		if err != nil {
			batch.AddError(line, a.cfg.DateColumn, row[dateCol], err)
			continue
		}
		q, err := parseDischarge(row[valueCol])
		if err != nil {
			batch.AddError(line, a.cfg.DischargeColumn, row[valueCol], err)
			continue
		}

		var flag *string
		keep := true
		if qualCol >= 0 {
			flag = ptr(row[qualCol])
			code, err := strconv.ParseFloat(strings.TrimSpace(row[qualCol]), 64)
			keep = err == nil && code > a.cfg.MinQuality
		}

		obs := reading(site.ID, day, q*scale, flag)
		if !keep || (a.cfg.RejectNonPositive && q <= 0) {
			obs.Rejected = true
		}
		batch.Add(obs)
	}
	return batch, nil
}
