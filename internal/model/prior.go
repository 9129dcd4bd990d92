package model

// CanonicalReachPrior is the model baseline for one reach.
type CanonicalReachPrior struct {
	ReachID    int64      `json:"reach_id"`
	Statistics Statistics `json:"statistics"`
}

// Canonical is the ordered set of reach priors for one continent. Positions
// are stable for the lifetime of a reconciliation pass.
type Canonical struct {
	Continent string                `json:"continent"`
	Reaches   []CanonicalReachPrior `json:"reaches"`
}

// Len returns the number of reaches.
func (c *Canonical) Len() int { return len(c.Reaches) }

// ReachIDs returns the reach ids in position order.
func (c *Canonical) ReachIDs() []int64 {
	ids := make([]int64, len(c.Reaches))
	for i, r := range c.Reaches {
		ids[i] = r.ReachID
	}
	return ids
}

// CalFlag separates calibration gauges from held-out validation gauges.
type CalFlag int

const (
	// VAL marks a gauge held out for validation; it must never overwrite a prior.
	VAL CalFlag = 0
	// CAL marks a gauge whose statistics may calibrate a prior.
	CAL CalFlag = 1
)

func (f CalFlag) String() string {
	if f == CAL {
		return "CAL"
	}
	return "VAL"
}

// SourceCandidate is one gauge's statistics offered for a reach during a pass.
type SourceCandidate struct {
	ReachID     int64      `json:"reach_id"`
	Agency      string     `json:"agency"`
	SiteID      string     `json:"site_id"`
	Statistics  Statistics `json:"statistics"`
	Calibration CalFlag    `json:"calibration"`
}

// Gauge is a catalog entry linking an agency station to a reach.
type Gauge struct {
	Agency      string  `json:"agency"`
	SiteID      string  `json:"site_id"`
	ReachID     int64   `json:"reach_id"`
	Calibration CalFlag `json:"calibration"`
	Historical  bool    `json:"historical"`
	Continent   string  `json:"continent"`
}

// GaugeStatistics are the statistics computed for one gauge in one run.
type GaugeStatistics struct {
	Gauge      Gauge      `json:"gauge"`
	Statistics Statistics `json:"statistics"`
	ValidDays  int        `json:"valid_days"`
	// Coverage holds the first and last days with a valid value.
	Coverage Coverage `json:"coverage"`
}

// Reach is a SWORD reach as loaded from the reach shapefile. Geometry is EWKB.
type Reach struct {
	ReachID   int64  `json:"reach_id"`
	Continent string `json:"continent"`
	Geometry  []byte `json:"-"`
}
