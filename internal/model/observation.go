package model

import (
	"fmt"
	"time"
)

// RawObservation is one discharge reading as delivered by an agency.
// Rejected is set by the agency's quality filter; rejected readings are
// carried so they can be counted, but never enter a daily series.
type RawObservation struct {
	SiteID      string    `json:"site_id"`
	Timestamp   time.Time `json:"timestamp"`
	Discharge   float64   `json:"discharge"`
	QualityFlag *string   `json:"quality_flag,omitempty"`
	Rejected    bool      `json:"rejected,omitempty"`
}

// ParseError describes a single record that could not be turned into a
// RawObservation. The record is dropped; the error is kept for diagnostics.
type ParseError struct {
	SiteID string `json:"site_id"`
	Line   int    `json:"line"`
	Field  string `json:"field"`
	Value  string `json:"value"`
	Err    error  `json:"-"`
}

func (e ParseError) Error() string {
	return fmt.Sprintf("site %s line %d: bad %s %q: %v", e.SiteID, e.Line, e.Field, e.Value, e.Err)
}

func (e ParseError) Unwrap() error { return e.Err }

// Batch is the result of one agency pull for one site.
type Batch struct {
	SiteID       string           `json:"site_id"`
	Observations []RawObservation `json:"observations"`
	ParseErrors  []ParseError     `json:"parse_errors,omitempty"`
}

// Add appends a parsed observation.
func (b *Batch) Add(obs RawObservation) {
	b.Observations = append(b.Observations, obs)
}

// AddError appends a per-record parse failure.
func (b *Batch) AddError(line int, field, value string, err error) {
	b.ParseErrors = append(b.ParseErrors, ParseError{
		SiteID: b.SiteID,
		Line:   line,
		Field:  field,
		Value:  value,
		Err:    err,
	})
}
