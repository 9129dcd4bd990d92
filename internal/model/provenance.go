package model

// SourceCodeLen is the fixed width of a provenance source code.
const SourceCodeLen = 4

// SourceCode identifies the source that wrote or was rejected for a reach.
// The zero value means "no source".
type SourceCode string

// NewSourceCode truncates name to the fixed code width.
func NewSourceCode(name string) SourceCode {
	if len(name) > SourceCodeLen {
		name = name[:SourceCodeLen]
	}
	return SourceCode(name)
}

// IsZero reports whether no source is set.
func (c SourceCode) IsZero() bool { return c == "" }

// ProvenanceRecord is the per-reach outcome of a reconciliation pass.
// Overwritten and BadPrior are independent: both may be set for one reach.
type ProvenanceRecord struct {
	Overwritten       bool       `json:"overwritten"`
	OverwrittenSource SourceCode `json:"overwritten_source"`
	BadPrior          bool       `json:"bad_prior"`
	BadPriorSource    SourceCode `json:"bad_prior_source"`
}

// ReachProvenance is a provenance record keyed by reach for storage and display.
type ReachProvenance struct {
	ReachID int64  `json:"reach_id"`
	RunID   string `json:"run_id"`
	ProvenanceRecord
}
