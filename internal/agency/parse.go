package agency

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/sos-priors/internal/calendar"
	"github.com/sells-group/sos-priors/internal/model"
)

// parseDischarge parses a discharge field. Blank and NA markers are missing
// readings and come back as NaN.
func parseDischarge(s string) (float64, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "na", "nan", "-", "--":
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, eris.Wrap(err, "parse discharge")
	}
	return v, nil
}

// parseDate parses s with layout, ignoring any time-of-day suffix beyond the layout.
func parseDate(s, layout string) (time.Time, error) {
	s = strings.TrimSpace(s)
	t, err := time.Parse(layout, s)
	if err == nil {
		return calendar.Truncate(t), nil
	}
	if len(s) > len(layout) {
		if t2, err2 := time.Parse(layout, s[:len(layout)]); err2 == nil {
			return calendar.Truncate(t2), nil
		}
	}
	return time.Time{}, eris.Wrap(err, "parse date")
}

// reading builds an accepted observation. Zero and negative discharge pass
// through; only agency quality codes reject a reading.
func reading(site string, day time.Time, q float64, flag *string) model.RawObservation {
	return model.RawObservation{
		SiteID:      site,
		Timestamp:   day,
		Discharge:   q,
		QualityFlag: flag,
	}
}

// expand fills the {site}, {start} and {end} placeholders of a location template.
func expand(template, siteID string, site Site) string {
	return strings.NewReplacer(
		"{site}", siteID,
		"{start}", site.Start.Format(calendar.DateLayout),
		"{end}", site.End.Format(calendar.DateLayout),
	).Replace(template)
}

// columnIndex finds name in header, ignoring case and surrounding space.
func columnIndex(header []string, name string) int {
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")), strings.TrimSpace(name)) {
			return i
		}
	}
	return -1
}

func ptr(s string) *string { return &s }
