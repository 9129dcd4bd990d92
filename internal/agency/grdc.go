package agency

import (
	"bufio"
	"bytes"
	"context"
	"path"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"

	"github.com/sells-group/sos-priors/internal/calendar"
	"github.com/sells-group/sos-priors/internal/config"
	"github.com/sells-group/sos-priors/internal/fetcher"
	"github.com/sells-group/sos-priors/internal/model"
)

const (
	grdcSuffix  = "_Q_Day.Cmd.txt"
	grdcMissing = -999.0
)

// GRDCAdapter reads sites out of a GRDC daily export archive. The archive is
// downloaded once and shared by every site of the run.
type GRDCAdapter struct {
	cfg config.GRDCConfig
	op  Opener

	mu    sync.Mutex
	files map[string][]byte // site id -> export file
}

// NewGRDC creates the GRDC archive adapter.
func NewGRDC(cfg config.GRDCConfig, op Opener) *GRDCAdapter {
	return &GRDCAdapter{cfg: cfg, op: op}
}

// Code implements Adapter.
func (a *GRDCAdapter) Code() Code { return GRDC }

func (a *GRDCAdapter) load(ctx context.Context) (map[string][]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.files != nil {
		return a.files, nil
	}
	if a.cfg.Archive == "" {
		return nil, eris.New("grdc: no archive configured")
	}

	data, err := a.op.ReadAll(ctx, a.cfg.Archive)
	if err != nil {
		return nil, eris.Wrap(err, "grdc: read archive")
	}
	entries, err := fetcher.ReadZIP(data, func(name string) bool { return strings.HasSuffix(name, grdcSuffix) })
	if err != nil {
		return nil, eris.Wrap(err, "grdc: open archive")
	}

	files := make(map[string][]byte, len(entries))
	for _, e := range entries {
		files[strings.TrimSuffix(path.Base(e.Name), grdcSuffix)] = e.Data
	}
	zap.L().Info("grdc: archive loaded", zap.Int("sites", len(files)))
	a.files = files
	return files, nil
}

// Fetch implements Adapter. A site absent from the archive yields an empty batch.
func (a *GRDCAdapter) Fetch(ctx context.Context, site Site) (*model.Batch, error) {
	files, err := a.load(ctx)
	if err != nil {
		return nil, err
	}

	batch := &model.Batch{SiteID: site.ID}
	data, ok := files[site.ID]
	if !ok {
		zap.L().Debug("grdc: site not in archive", zap.String("site", site.ID))
		return batch, nil
	}

	// Exports are ISO-8859-1 encoded.
	sc := bufio.NewScanner(charmap.ISO8859_1.NewDecoder().Reader(bytes.NewReader(data)))
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") || strings.HasPrefix(text, "YYYY") {
			continue
		}
		fields := strings.Split(text, ";")
		if len(fields) < 3 {
			batch.AddError(line, "row", text, eris.New("expected date;time;value"))
			continue
		}
		day, err := parseDate(fields[0], calendar.DateLayout)
		if err != nil {
			batch.AddError(line, "date", fields[0], err)
			continue
		}
		q, err := parseDischarge(fields[2])
		if err != nil {
			batch.AddError(line, "value", fields[2], err)
			continue
		}
		if q == grdcMissing {
			batch.Add(model.RawObservation{SiteID: site.ID, Timestamp: day, Discharge: q, QualityFlag: ptr("missing"), Rejected: true})
			continue
		}
		batch.Add(reading(site.ID, day, q, nil))
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrapf(err, "grdc: scan site %s", site.ID)
	}
	return batch, nil
}
