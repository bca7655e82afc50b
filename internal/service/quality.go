package service

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/ZanzyTHEbar/epa-scoring/internal/database"
)

// RatingSource lists every raw rating for the reliability report.
type RatingSource interface {
	ListRatings(ctx context.Context) ([]database.Rating, error)
}

type AssessorStats struct {
	AssessorID string  `json:"assessor_id"`
	Count      int     `json:"rating_count"`
	Mean       float64 `json:"mean_score"`
	StdDev     float64 `json:"std_dev"`
}

type IndicatorSpread struct {
	IndicatorID   string  `json:"indicator_id"`
	Count         int     `json:"rating_count"`
	AssessorCount int     `json:"assessor_count"`
	Mean          float64 `json:"mean_score"`
	Median        float64 `json:"median_score"`
	StdDev        float64 `json:"std_dev"`
	Range         float64 `json:"range"`
}

// ReliabilityReport summarizes how consistently assessors rate. The
// consistency index only considers indicators rated by two or more
// assessors and is nil when there are none.
type ReliabilityReport struct {
	TotalRatings     int               `json:"total_ratings"`
	Assessors        []AssessorStats   `json:"assessors"`
	Indicators       []IndicatorSpread `json:"indicators"`
	EvidenceTypes    map[string]int    `json:"evidence_types"`
	ConsistencyIndex *float64          `json:"consistency_index,omitempty"`
	GeneratedAt      time.Time         `json:"generated_at"`
}

type QualityService struct {
	ratings RatingSource
	now     func() time.Time
}

func NewQualityService(ratings RatingSource) *QualityService {
	return &QualityService{
		ratings: ratings,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// ReliabilityReport computes the report over every stored rating.
func (q *QualityService) ReliabilityReport(ctx context.Context) (ReliabilityReport, error) {
	ratings, err := q.ratings.ListRatings(ctx)
	if err != nil {
		return ReliabilityReport{}, storeError("list_ratings", err)
	}
	report := BuildReliabilityReport(ratings)
	report.GeneratedAt = q.now()
	return report, nil
}

// BuildReliabilityReport is the pure part of ReliabilityReport.
func BuildReliabilityReport(ratings []database.Rating) ReliabilityReport {
	byAssessor := map[string][]float64{}
	byIndicator := map[string][]float64{}
	indicatorAssessors := map[string]map[string]struct{}{}
	evidence := map[string]int{}

	for _, r := range ratings {
		byAssessor[r.AssessorID] = append(byAssessor[r.AssessorID], r.BaseScore)
		byIndicator[r.IndicatorID] = append(byIndicator[r.IndicatorID], r.BaseScore)
		if indicatorAssessors[r.IndicatorID] == nil {
			indicatorAssessors[r.IndicatorID] = map[string]struct{}{}
		}
		indicatorAssessors[r.IndicatorID][r.AssessorID] = struct{}{}
		evidence[r.EvidenceType]++
	}

	report := ReliabilityReport{
		TotalRatings:  len(ratings),
		Assessors:     make([]AssessorStats, 0, len(byAssessor)),
		Indicators:    make([]IndicatorSpread, 0, len(byIndicator)),
		EvidenceTypes: evidence,
	}

	for id, scores := range byAssessor {
		m, sd := meanStdDev(scores)
		report.Assessors = append(report.Assessors, AssessorStats{
			AssessorID: id,
			Count:      len(scores),
			Mean:       m,
			StdDev:     sd,
		})
	}
	sort.Slice(report.Assessors, func(i, j int) bool {
		return report.Assessors[i].AssessorID < report.Assessors[j].AssessorID
	})

	var sdSum float64
	var sdCount int
	for id, scores := range byIndicator {
		m, sd := meanStdDev(scores)
		lo, hi := minMax(scores)
		spread := IndicatorSpread{
			IndicatorID:   id,
			Count:         len(scores),
			AssessorCount: len(indicatorAssessors[id]),
			Mean:          m,
			Median:        median(scores),
			StdDev:        sd,
			Range:         hi - lo,
		}
		report.Indicators = append(report.Indicators, spread)
		if spread.AssessorCount >= 2 {
			sdSum += sd
			sdCount++
		}
	}
	sort.Slice(report.Indicators, func(i, j int) bool {
		return report.Indicators[i].IndicatorID < report.Indicators[j].IndicatorID
	})

	if sdCount > 0 {
		index := clip(1-(sdSum/float64(sdCount))/2, 0, 1)
		report.ConsistencyIndex = &index
	}
	return report
}

// meanStdDev returns the mean and population standard deviation.
func meanStdDev(xs []float64) (float64, float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))

	var sq float64
	for _, x := range xs {
		sq += (x - mean) * (x - mean)
	}
	return mean, math.Sqrt(sq / float64(len(xs)))
}

func median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	cp := append([]float64(nil), xs...)
	sort.Float64s(cp)
	mid := len(cp) / 2
	if len(cp)%2 == 1 {
		return cp[mid]
	}
	return 0.5 * (cp[mid-1] + cp[mid])
}

func minMax(xs []float64) (float64, float64) {
	lo, hi := xs[0], xs[0]
	for _, x := range xs[1:] {
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	return lo, hi
}

func clip(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
