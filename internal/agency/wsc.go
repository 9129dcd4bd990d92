package agency

import (
	"context"
	"fmt"
	"net/url"

	"github.com/rotisserie/eris"

	"github.com/sells-group/sos-priors/internal/calendar"
	"github.com/sells-group/sos-priors/internal/config"
	"github.com/sells-group/sos-priors/internal/fetcher"
	"github.com/sells-group/sos-priors/internal/model"
)

// WSC real-time CSV columns.
const (
	wscDateCol  = 1
	wscValueCol = 3
)

// WSCAdapter pulls real-time discharge (parameter 47) from the Water Survey
// of Canada. Readings are sub-daily; the regularizer averages them per day.
type WSCAdapter struct {
	cfg config.WSCConfig
	op  Opener
}

// NewWSC creates the Water Survey of Canada adapter.
func NewWSC(cfg config.WSCConfig, op Opener) *WSCAdapter {
	return &WSCAdapter{cfg: cfg, op: op}
}

// Code implements Adapter.
func (a *WSCAdapter) Code() Code { return WSC }

func (a *WSCAdapter) url(site Site) string {
	return fmt.Sprintf("%s?stations[]=%s&parameters[]=47&start_date=%s%%2000:00:00&end_date=%s%%2023:59:59",
		a.cfg.BaseURL,
		url.QueryEscape(site.ID),
		site.Start.Format(calendar.DateLayout),
		site.End.Format(calendar.DateLayout),
	)
}

// Fetch implements Adapter.
func (a *WSCAdapter) Fetch(ctx context.Context, site Site) (*model.Batch, error) {
	rc, err := a.op.Open(ctx, a.url(site))
	if err != nil {
		return nil, eris.Wrapf(err, "wsc: fetch site %s", site.ID)
	}
	defer rc.Close() //nolint:errcheck

	rows, err := fetcher.CollectCSV(ctx, rc, fetcher.CSVOptions{HasHeader: true, LazyQuotes: true, TrimSpace: true})
	if err != nil {
		return nil, eris.Wrapf(err, "wsc: read site %s", site.ID)
	}

	batch := &model.Batch{SiteID: site.ID}
	for i, row := range rows {
		line := i + 2
		if len(row) <= wscValueCol {
			batch.AddError(line, "row", fmt.Sprint(row), eris.Errorf("expected at least %d columns", wscValueCol+1))
			continue
		}
		day, err := parseDate(row[wscDateCol], calendar.DateLayout)
		if err != nil {
			batch.AddError(line, "date", row[wscDateCol], err)
			continue
		}
		q, err := parseDischarge(row[wscValueCol])
		if err != nil {
			batch.AddError(line, "value", row[wscValueCol], err)
			continue
		}
		batch.Add(reading(site.ID, day, q, nil))
	}
	return batch, nil
}
