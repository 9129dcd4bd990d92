package model

import (
	"errors"
	"math"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSourceCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		want SourceCode
	}{
		{"usgs", "usgs"},
		{"grdc", "grdc"},
		{"WSC", "WSC"},
		{"DEFRA", "DEFR"},
		{"Hidroweb", "Hidr"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := NewSourceCode(tt.name)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, len(got), SourceCodeLen)
		})
	}
}

func TestSourceCode_IsZero(t *testing.T) {
	t.Parallel()
	assert.True(t, SourceCode("").IsZero())
	assert.False(t, NewSourceCode("usgs").IsZero())
}

func TestBatch_AddError(t *testing.T) {
	t.Parallel()

	b := &Batch{SiteID: "01010000"}
	_, err := strconv.ParseFloat("abc", 64)
	b.AddError(7, "discharge", "abc", err)
	b.Add(RawObservation{SiteID: "01010000", Discharge: 1.5})

	require.Len(t, b.ParseErrors, 1)
	require.Len(t, b.Observations, 1)

	pe := b.ParseErrors[0]
	assert.Equal(t, "01010000", pe.SiteID)
	assert.Equal(t, 7, pe.Line)
	assert.Contains(t, pe.Error(), `bad discharge "abc"`)
	assert.True(t, errors.Is(pe, strconv.ErrSyntax))
}

func TestMissingStatistics(t *testing.T) {
	t.Parallel()

	s := MissingStatistics()
	count := 0
	s.Values(func(_ string, v float64) {
		count++
		assert.True(t, math.IsNaN(v))
	})
	assert.Equal(t, FDCPoints+Months+4, count)
}

func TestDailySeries_ValidCount(t *testing.T) {
	t.Parallel()

	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	s := &DailySeries{Start: start, Values: []float64{1, math.NaN(), 3}}

	assert.Equal(t, 3, s.Len())
	assert.Equal(t, 2, s.ValidCount())
	assert.False(t, s.Valid(1))
	assert.Equal(t, time.Date(2020, 1, 3, 0, 0, 0, 0, time.UTC), s.Date(2))
}

func TestCanonical_ReachIDs(t *testing.T) {
	t.Parallel()

	c := &Canonical{Reaches: []CanonicalReachPrior{{ReachID: 11}, {ReachID: 22}}}
	assert.Equal(t, []int64{11, 22}, c.ReachIDs())
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, "CAL", CAL.String())
	assert.Equal(t, "VAL", VAL.String())
}
