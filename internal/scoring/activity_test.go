package scoring

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/ZanzyTHEbar/epa-scoring/internal/errors"
)

func TestAggregateWeighted(t *testing.T) {
	tests := []struct {
		name      string
		values    []WeightedValue
		wantScore float64
		wantSum   float64
		wantTotal float64
	}{
		{
			name:      "weights summing to one",
			values:    []WeightedValue{{Value: 4.0, Weight: 0.3}, {Value: 3.0, Weight: 0.7}},
			wantScore: 3.3,
			wantSum:   3.3,
			wantTotal: 1.0,
		},
		{
			name:      "weights not summing to one are normalized",
			values:    []WeightedValue{{Value: 4.0, Weight: 0.2}, {Value: 2.0, Weight: 0.2}},
			wantScore: 3.0,
			wantSum:   1.2,
			wantTotal: 0.4,
		},
		{
			name:      "zero total weight yields zero",
			values:    []WeightedValue{{Value: 4.0, Weight: 0}, {Value: 5.0, Weight: 0}},
			wantScore: 0,
			wantSum:   0,
			wantTotal: 0,
		},
		{
			name:      "empty input yields zero",
			values:    nil,
			wantScore: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, sum, total := AggregateWeighted(tt.values)
			assert.InDelta(t, tt.wantScore, score, 1e-9)
			assert.InDelta(t, tt.wantSum, sum, 1e-9)
			assert.InDelta(t, tt.wantTotal, total, 1e-9)
		})
	}
}

func TestAggregateWeightedSingleValueIgnoresWeight(t *testing.T) {
	for _, w := range []float64{0.01, 0.1, 0.3, 0.5, 1.0, 2.5} {
		score, _, _ := AggregateWeighted([]WeightedValue{{Value: 3.7, Weight: w}})
		assert.InDelta(t, 3.7, score, 1e-12, "weight %v", w)
	}
}

func activityFixture() *fakeStore {
	store := newFakeStore()
	store.activityOf["IND_A"] = "ACT_001"
	store.activityOf["IND_B"] = "ACT_001"
	store.activityOf["IND_C"] = "ACT_002"
	now := time.Now()
	store.assessments = []AssessmentDetail{
		{AssessmentID: "ASS_1", StudentID: "STU_001", IndicatorID: "IND_A", BaseScore: 4.0, WeightPercentage: 30, CreatedAt: now.Add(-2 * time.Hour)},
		{AssessmentID: "ASS_2", StudentID: "STU_001", IndicatorID: "IND_B", BaseScore: 3.0, WeightPercentage: 70, CreatedAt: now.Add(-time.Hour)},
		{AssessmentID: "ASS_3", StudentID: "STU_002", IndicatorID: "IND_A", BaseScore: 2.0, WeightPercentage: 30, CreatedAt: now},
		{AssessmentID: "ASS_4", StudentID: "STU_001", IndicatorID: "IND_C", BaseScore: 4.5, WeightPercentage: 0, CreatedAt: now},
	}
	return store
}

func TestEngine_ActivityScore(t *testing.T) {
	ctx := context.Background()

	t.Run("weighted mean of assessments", func(t *testing.T) {
		engine := NewEngine(activityFixture(), nil)
		got, err := engine.ActivityScore(ctx, "STU_001", "ACT_001")
		require.NoError(t, err)
		assert.InDelta(t, 3.3, got.WeightedSum, 1e-9)
		assert.InDelta(t, 1.0, got.TotalWeight, 1e-9)
		assert.InDelta(t, 3.3, got.Score, 1e-9)
		assert.Equal(t, 2, got.IndicatorCount)
		require.Len(t, got.Breakdown, 2)
		assert.Equal(t, "ASS_2", got.Breakdown[0].AssessmentID, "newest first")
		assert.InDelta(t, 2.1, got.Breakdown[0].WeightedScore, 1e-9)
	})

	t.Run("repeat assessments all count", func(t *testing.T) {
		store := activityFixture()
		store.assessments = append(store.assessments, AssessmentDetail{
			AssessmentID: "ASS_5", StudentID: "STU_001", IndicatorID: "IND_A", BaseScore: 5.0, WeightPercentage: 30, CreatedAt: time.Now(),
		})
		got, err := NewEngine(store, nil).ActivityScore(ctx, "STU_001", "ACT_001")
		require.NoError(t, err)
		assert.Equal(t, 3, got.IndicatorCount)
		// (4*0.3 + 3*0.7 + 5*0.3) / 1.3
		assert.InDelta(t, 4.8/1.3, got.Score, 1e-9)
	})

	t.Run("zero weight indicators give zero not an error", func(t *testing.T) {
		got, err := NewEngine(activityFixture(), nil).ActivityScore(ctx, "STU_001", "ACT_002")
		require.NoError(t, err)
		assert.Equal(t, 0.0, got.Score)
		assert.Equal(t, 1, got.IndicatorCount)
	})

	t.Run("no assessments is NoData", func(t *testing.T) {
		_, err := NewEngine(activityFixture(), nil).ActivityScore(ctx, "STU_002", "ACT_002")
		require.Error(t, err)
		assert.True(t, apperrors.IsNoData(err))
	})

	t.Run("store failure propagates", func(t *testing.T) {
		store := activityFixture()
		store.err = errStoreDown
		_, err := NewEngine(store, nil).ActivityScore(ctx, "STU_001", "ACT_001")
		require.Error(t, err)
		assert.True(t, apperrors.IsStoreFailure(err))
	})
}
