package agency

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/sos-priors/internal/config"
	"github.com/sells-group/sos-priors/internal/fetcher"
	"github.com/sells-group/sos-priors/internal/model"
)

// HydroShareDateLayout is the dd-mm-YYYY date format of the collection files.
const HydroShareDateLayout = "02-01-2006"

// HydroShare collection columns: reach_id,node_id,sword_version,x,y,date,Q.
const (
	hsVersionCol = 2
	hsDateCol    = 5
	hsValueCol   = 6
)

// HydroShareAdapter reads discharge from HydroShare collection CSVs. Rows
// tied to another SWORD release are rejected.
type HydroShareAdapter struct {
	cfg          config.HydroShareConfig
	swordVersion string
	op           Opener
}

// NewHydroShare creates the HydroShare adapter for the given SWORD release.
func NewHydroShare(cfg config.HydroShareConfig, swordVersion string, op Opener) *HydroShareAdapter {
	return &HydroShareAdapter{cfg: cfg, swordVersion: swordVersion, op: op}
}

// Code implements Adapter.
func (a *HydroShareAdapter) Code() Code { return HydroShare }

// Fetch implements Adapter.
func (a *HydroShareAdapter) Fetch(ctx context.Context, site Site) (*model.Batch, error) {
	if a.cfg.URL == "" {
		return nil, eris.New("hydroshare: no url configured")
	}
	rc, err := a.op.Open(ctx, expand(a.cfg.URL, site.ID, site))
	if err != nil {
		return nil, eris.Wrapf(err, "hydroshare: fetch site %s", site.ID)
	}
	defer rc.Close() //nolint:errcheck

	rows, err := fetcher.CollectCSV(ctx, rc, fetcher.CSVOptions{HasHeader: true, TrimSpace: true})
	if err != nil {
		return nil, eris.Wrapf(err, "hydroshare: read site %s", site.ID)
	}

	batch := &model.Batch{SiteID: site.ID}
	for i, row := range rows {
		line := i + 2
		if len(row) <= hsValueCol {
			batch.AddError(line, "row", fmt.Sprint(row), eris.Errorf("expected %d columns", hsValueCol+1))
			continue
		}
		day, err := parseDate(row[hsDateCol], HydroShareDateLayout)
		if err != nil {
			batch.AddError(line, "date", row[hsDateCol], err)
			continue
		}
		q, err := parseDischarge(row[hsValueCol])
		if err != nil {
			batch.AddError(line, "Q", row[hsValueCol], err)
			continue
		}
		obs := reading(site.ID, day, q, ptr("sword_version="+row[hsVersionCol]))
		if !sameVersion(row[hsVersionCol], a.swordVersion) {
			obs.Rejected = true
		}
		batch.Add(obs)
	}
	return batch, nil
}

// sameVersion compares SWORD release labels, treating "16" and "16.0" as equal.
func sameVersion(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == b {
		return true
	}
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	return errA == nil && errB == nil && fa == fb
}
