package agency

import (
	"context"
	"math"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/sos-priors/internal/calendar"
	"github.com/sells-group/sos-priors/internal/config"
	"github.com/sells-group/sos-priors/internal/fetcher"
	"github.com/sells-group/sos-priors/internal/model"
)

// CFSToCMS converts cubic feet per second to cubic metres per second.
const CFSToCMS = 0.0283168

// nwisResponse is the subset of the NWIS daily values JSON we read.
type nwisResponse struct {
	Value struct {
		TimeSeries []struct {
			Variable struct {
				NoDataValue *float64 `json:"noDataValue"`
			} `json:"variable"`
			Values []struct {
				Value []struct {
					Value      string   `json:"value"`
					Qualifiers []string `json:"qualifiers"`
					DateTime   string   `json:"dateTime"`
				} `json:"value"`
			} `json:"values"`
		} `json:"timeSeries"`
	} `json:"value"`
}

// USGSAdapter pulls daily mean discharge (parameter 00060) from NWIS.
type USGSAdapter struct {
	cfg config.USGSConfig
	op  Opener
}

// NewUSGS creates the NWIS adapter.
func NewUSGS(cfg config.USGSConfig, op Opener) *USGSAdapter {
	return &USGSAdapter{cfg: cfg, op: op}
}

// Code implements Adapter.
func (a *USGSAdapter) Code() Code { return USGS }

func (a *USGSAdapter) url(site Site) string {
	q := url.Values{}
	q.Set("format", "json")
	q.Set("sites", site.ID)
	q.Set("startDT", site.Start.Format(calendar.DateLayout))
	q.Set("endDT", site.End.Format(calendar.DateLayout))
	q.Set("parameterCd", "00060")
	q.Set("statCd", "00003")
	q.Set("siteStatus", "all")
	return a.cfg.BaseURL + "?" + q.Encode()
}

// Fetch implements Adapter. Readings flagged Ice and missing readings are
// rejected; values are converted to m3/s.
func (a *USGSAdapter) Fetch(ctx context.Context, site Site) (*model.Batch, error) {
	rc, err := a.op.Open(ctx, a.url(site))
	if err != nil {
		return nil, eris.Wrapf(err, "usgs: fetch site %s", site.ID)
	}
	defer rc.Close() //nolint:errcheck

	resp, err := fetcher.DecodeJSONObject[nwisResponse](rc)
	if err != nil {
		return nil, eris.Wrapf(err, "usgs: decode site %s", site.ID)
	}

	batch := &model.Batch{SiteID: site.ID}
	line := 0
	for _, ts := range resp.Value.TimeSeries {
		for _, block := range ts.Values {
			for _, v := range block.Value {
				line++
				day, err := parseDate(v.DateTime, calendar.DateLayout)
				if err != nil {
					batch.AddError(line, "dateTime", v.DateTime, err)
					continue
				}

				flag := strings.Join(v.Qualifiers, ",")
				q, err := parseDischarge(v.Value)
				if err != nil {
					batch.AddError(line, "value", v.Value, err)
					continue
				}
				missing := math.IsNaN(q) || (ts.Variable.NoDataValue != nil && q == *ts.Variable.NoDataValue)
				if missing {
					batch.Add(model.RawObservation{SiteID: site.ID, Timestamp: day, Discharge: q, QualityFlag: ptr("*"), Rejected: true})
					continue
				}

				obs := reading(site.ID, day, q*CFSToCMS, ptr(flag))
				if hasIce(v.Qualifiers) {
					obs.Rejected = true
				}
				batch.Add(obs)
			}
		}
	}
	return batch, nil
}

func hasIce(qualifiers []string) bool {
	for _, q := range qualifiers {
		if strings.Contains(q, "Ice") {
			return true
		}
	}
	return false
}
