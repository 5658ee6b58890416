// Package metric computes leaderboard metrics over aligned prediction/label
// pairs and defines how scores of each metric are ordered.
package metric

import (
	"strings"

	"github.com/okian/scorer/internal/apperr"
)

// Kind names a supported metric. It is fixed per competition.
type Kind string

const (
	Accuracy     Kind = "accuracy"
	F1           Kind = "f1"
	ROCAUC       Kind = "roc_auc"
	CrossEntropy Kind = "cross_entropy"
	MAE          Kind = "mae"
	MSE          Kind = "mse"
	RMSE         Kind = "rmse"
)

// All lists the supported metrics.
var All = []Kind{Accuracy, F1, ROCAUC, CrossEntropy, MAE, MSE, RMSE}

var aliases = map[string]Kind{
	"log_loss": CrossEntropy,
	"logloss":  CrossEntropy,
	"auc":      ROCAUC,
	"rocauc":   ROCAUC,
}

// Parse resolves a metric name case-insensitively. Unknown names are a
// MetricError.
func Parse(name string) (Kind, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for _, k := range All {
		if string(k) == n {
			return k, nil
		}
	}
	if k, ok := aliases[n]; ok {
		return k, nil
	}
	return "", apperr.New(apperr.KindMetric, "metric.parse", "unknown metric %q", name)
}

// LowerIsBetter reports whether smaller scores rank higher (error metrics).
func (k Kind) LowerIsBetter() bool {
	switch k {
	case MAE, MSE, RMSE, CrossEntropy:
		return true
	default:
		return false
	}
}

// Better reports whether score a ranks strictly ahead of score b.
func (k Kind) Better(a, b float64) bool {
	if k.LowerIsBetter() {
		return a < b
	}
	return a > b
}

// Continuous reports whether the metric compares numbers rather than classes.
func (k Kind) Continuous() bool {
	return k == MAE || k == MSE || k == RMSE
}

func (k Kind) String() string { return string(k) }
