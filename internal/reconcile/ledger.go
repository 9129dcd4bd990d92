package reconcile

import "github.com/sells-group/sos-priors/internal/model"

// Ledger holds the provenance of one reconciliation pass as four arrays
// aligned with the canonical reach positions.
type Ledger struct {
	overwritten       []bool
	overwrittenSource []model.SourceCode
	badPrior          []bool
	badPriorSource    []model.SourceCode
}

// NewLedger returns a ledger for n reaches with nothing overwritten.
func NewLedger(n int) *Ledger {
	return &Ledger{
		overwritten:       make([]bool, n),
		overwrittenSource: make([]model.SourceCode, n),
		badPrior:          make([]bool, n),
		badPriorSource:    make([]model.SourceCode, n),
	}
}

// Len returns the number of reaches covered.
func (l *Ledger) Len() int { return len(l.overwritten) }

func (l *Ledger) markOverwritten(pos int, code model.SourceCode) {
	l.overwritten[pos] = true
	l.overwrittenSource[pos] = code
}

// markBad leaves any earlier overwrite of the same reach in place.
func (l *Ledger) markBad(pos int, code model.SourceCode) {
	l.badPrior[pos] = true
	l.badPriorSource[pos] = code
}

// Record returns the provenance of the reach at pos.
func (l *Ledger) Record(pos int) model.ProvenanceRecord {
	return model.ProvenanceRecord{
		Overwritten:       l.overwritten[pos],
		OverwrittenSource: l.overwrittenSource[pos],
		BadPrior:          l.badPrior[pos],
		BadPriorSource:    l.badPriorSource[pos],
	}
}

// Overwritten returns a copy of the overwritten flags.
func (l *Ledger) Overwritten() []bool { return append([]bool(nil), l.overwritten...) }

// OverwrittenSource returns a copy of the overwrite source codes.
func (l *Ledger) OverwrittenSource() []model.SourceCode {
	return append([]model.SourceCode(nil), l.overwrittenSource...)
}

// BadPriors returns a copy of the bad prior flags.
func (l *Ledger) BadPriors() []bool { return append([]bool(nil), l.badPrior...) }

// BadPriorSource returns a copy of the bad prior source codes.
func (l *Ledger) BadPriorSource() []model.SourceCode {
	return append([]model.SourceCode(nil), l.badPriorSource...)
}

// Counts returns how many reaches ended the pass overwritten and flagged bad.
func (l *Ledger) Counts() (overwritten, bad int) {
	for i := range l.overwritten {
		if l.overwritten[i] {
			overwritten++
		}
		if l.badPrior[i] {
			bad++
		}
	}
	return overwritten, bad
}

// Records keys every ledger entry by reach id for storage.
func (l *Ledger) Records(reachIDs []int64, runID string) []model.ReachProvenance {
	out := make([]model.ReachProvenance, len(reachIDs))
	for i, id := range reachIDs {
		out[i] = model.ReachProvenance{ReachID: id, RunID: runID, ProvenanceRecord: l.Record(i)}
	}
	return out
}
