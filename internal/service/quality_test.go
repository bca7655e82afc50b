package service

import (
	"context"
	"testing"

	"github.com/ZanzyTHEbar/epa-scoring/internal/database"
	apperrors "github.com/ZanzyTHEbar/epa-scoring/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildReliabilityReport(t *testing.T) {
	report := BuildReliabilityReport([]database.Rating{
		{AssessorID: "FAC1", IndicatorID: "IND_001", BaseScore: 4, EvidenceType: "Direct_Observation"},
		{AssessorID: "FAC1", IndicatorID: "IND_002", BaseScore: 3, EvidenceType: "Simulation"},
		{AssessorID: "FAC2", IndicatorID: "IND_001", BaseScore: 2, EvidenceType: "Direct_Observation"},
		{AssessorID: "FAC2", IndicatorID: "IND_002", BaseScore: 3, EvidenceType: "Direct_Observation"},
		{AssessorID: "FAC2", IndicatorID: "IND_003", BaseScore: 5, EvidenceType: "Simulation"},
	})

	assert.Equal(t, 5, report.TotalRatings)
	assert.Equal(t, map[string]int{"Direct_Observation": 3, "Simulation": 2}, report.EvidenceTypes)

	require.Len(t, report.Assessors, 2)
	assert.Equal(t, "FAC1", report.Assessors[0].AssessorID)
	assert.InDelta(t, 3.5, report.Assessors[0].Mean, 1e-9)
	assert.InDelta(t, 0.5, report.Assessors[0].StdDev, 1e-9)

	require.Len(t, report.Indicators, 3)
	ind1 := report.Indicators[0]
	assert.Equal(t, 2, ind1.AssessorCount)
	assert.InDelta(t, 3.0, ind1.Mean, 1e-9)
	assert.InDelta(t, 3.0, ind1.Median, 1e-9)
	assert.InDelta(t, 1.0, ind1.StdDev, 1e-9)
	assert.InDelta(t, 2.0, ind1.Range, 1e-9)

	// IND_003 has a single assessor and is left out of the index
	require.NotNil(t, report.ConsistencyIndex)
	assert.InDelta(t, 0.75, *report.ConsistencyIndex, 1e-9)
}

func TestBuildReliabilityReportEmpty(t *testing.T) {
	report := BuildReliabilityReport(nil)
	assert.Equal(t, 0, report.TotalRatings)
	assert.Empty(t, report.Assessors)
	assert.Nil(t, report.ConsistencyIndex)
}

func TestReliabilityReportStoreFailure(t *testing.T) {
	repo := newFakeRepo()
	repo.err = errStoreDown
	_, err := NewQualityService(repo).ReliabilityReport(context.Background())
	assert.True(t, apperrors.IsStoreFailure(err))
}

func TestMedian(t *testing.T) {
	tests := []struct {
		name     string
		input    []float64
		expected float64
	}{
		{name: "empty", input: nil, expected: 0},
		{name: "odd", input: []float64{9, 1, 5}, expected: 5},
		{name: "even", input: []float64{1, 2, 3, 4}, expected: 2.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, median(tt.input), 1e-9)
		})
	}
}
