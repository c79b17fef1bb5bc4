package improvement

import (
	"fmt"
	"math"

	"github.com/GoSim-25-26J-441/simtune/pkg/models"
	"gonum.org/v1/gonum/stat"
)

// Trend labels reported by CompareHistory
const (
	TrendImproving = "improving"
	TrendDegrading = "degrading"
	TrendStable    = "stable"
)

// CompareHistory compares scored evaluations in order. Sentinel and
// non-finite fitness values are counted as failed and excluded from the
// statistics.
func CompareHistory(history []models.Evaluation) (*models.HistoryComparison, error) {
	if len(history) == 0 {
		return nil, fmt.Errorf("no evaluations provided")
	}

	c := &models.HistoryComparison{Samples: len(history), BestIndex: -1, WorstIndex: -1}
	scores := make([]float64, 0, len(history))
	var worst float64
	for _, ev := range history {
		if !scored(ev.Fitness) {
			c.Failed++
			continue
		}
		if c.BestIndex < 0 || ev.Fitness < c.BestFitness {
			c.BestIndex = ev.Index
			c.BestFitness = ev.Fitness
		}
		if c.WorstIndex < 0 || ev.Fitness > worst {
			c.WorstIndex = ev.Index
			worst = ev.Fitness
		}
		scores = append(scores, ev.Fitness)
	}
	if len(scores) == 0 {
		return c, fmt.Errorf("no scored evaluations among %d", len(history))
	}

	c.AverageScore, c.ScoreVariance = stat.PopMeanVariance(scores, nil)
	c.ImprovementTrend = determineTrend(scores)
	c.ImprovementPct = GetImprovementPercentage(scores[0], c.BestFitness)
	return c, nil
}

// determineTrend fits a line through the scores; a negative slope relative
// to the mean score is an improvement
func determineTrend(scores []float64) string {
	if len(scores) < 2 {
		return TrendStable
	}
	xs := make([]float64, len(scores))
	for i := range xs {
		xs[i] = float64(i)
	}
	_, slope := stat.LinearRegression(xs, scores, nil, false)
	scale := math.Max(math.Abs(stat.Mean(scores, nil)), 1)
	switch rel := slope / scale; {
	case rel < -0.01:
		return TrendImproving
	case rel > 0.01:
		return TrendDegrading
	default:
		return TrendStable
	}
}

// GetImprovementPercentage calculates the percentage improvement from score1 to score2 (lower is better)
func GetImprovementPercentage(score1, score2 float64) float64 {
	if score1 == 0 {
		return 0
	}
	return -((score2 - score1) / score1) * 100
}

func scored(f float64) bool {
	return f < math.MaxFloat64 && !math.IsNaN(f) && !math.IsInf(f, 0)
}
