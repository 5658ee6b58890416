package metric_test

import (
	"math"
	"strconv"
	"testing"

	"github.com/okian/scorer/internal/apperr"
	"github.com/okian/scorer/internal/domain/metric"
	"github.com/okian/scorer/internal/domain/table"
	. "github.com/smartystreets/goconvey/convey"
)

func pairs(pred, truth []table.Value) []metric.Pair {
	out := make([]metric.Pair, len(pred))
	for i := range pred {
		out[i] = metric.Pair{Key: strconv.Itoa(i), Pred: pred[i], Truth: truth[i]}
	}
	return out
}

func nums(xs ...float64) []table.Value {
	out := make([]table.Value, len(xs))
	for i, x := range xs {
		out[i] = table.Num(x)
	}
	return out
}

func cats(xs ...string) []table.Value {
	out := make([]table.Value, len(xs))
	for i, x := range xs {
		out[i] = table.Cat(x)
	}
	return out
}

func TestParse(t *testing.T) {
	Convey("Given metric names", t, func() {
		Convey("When parsing canonical names and aliases", func() {
			for _, k := range metric.All {
				got, err := metric.Parse(" " + string(k) + " ")
				So(err, ShouldBeNil)
				So(got, ShouldEqual, k)
			}
			got, err := metric.Parse("RMSE")
			So(err, ShouldBeNil)
			So(got, ShouldEqual, metric.RMSE)
			got, _ = metric.Parse("log_loss")
			So(got, ShouldEqual, metric.CrossEntropy)
			got, _ = metric.Parse("AUC")
			So(got, ShouldEqual, metric.ROCAUC)
		})

		Convey("When parsing an unknown name", func() {
			_, err := metric.Parse("r2")

			Convey("Then it is a metric error", func() {
				So(apperr.KindOf(err), ShouldEqual, apperr.KindMetric)
				So(err.Error(), ShouldContainSubstring, `unknown metric "r2"`)
			})
		})
	})
}

func TestOrdering(t *testing.T) {
	Convey("Given the leaderboard comparator", t, func() {
		Convey("Then error metrics rank ascending", func() {
			for _, k := range []metric.Kind{metric.MAE, metric.MSE, metric.RMSE, metric.CrossEntropy} {
				So(k.LowerIsBetter(), ShouldBeTrue)
				So(k.Better(0.1, 0.2), ShouldBeTrue)
				So(k.Better(0.2, 0.1), ShouldBeFalse)
			}
		})

		Convey("Then quality metrics rank descending", func() {
			for _, k := range []metric.Kind{metric.Accuracy, metric.F1, metric.ROCAUC} {
				So(k.LowerIsBetter(), ShouldBeFalse)
				So(k.Better(0.9, 0.8), ShouldBeTrue)
			}
		})

		Convey("Then equal scores never rank ahead", func() {
			So(metric.MAE.Better(1, 1), ShouldBeFalse)
			So(metric.F1.Better(1, 1), ShouldBeFalse)
		})
	})
}

func TestPerfectSubmission(t *testing.T) {
	Convey("Given a submission identical to the ground truth", t, func() {
		labels := nums(1, 0, 1, 1, 0)

		Convey("Then accuracy and f1 are 1", func() {
			acc, err := metric.Evaluate(metric.Accuracy, pairs(labels, labels))
			So(err, ShouldBeNil)
			So(acc, ShouldEqual, 1.0)

			f1, err := metric.Evaluate(metric.F1, pairs(labels, labels))
			So(err, ShouldBeNil)
			So(f1, ShouldEqual, 1.0)
		})

		Convey("Then the error metrics are 0", func() {
			for _, k := range []metric.Kind{metric.MAE, metric.MSE, metric.RMSE} {
				v, err := metric.Evaluate(k, pairs(nums(1.5, -2, 3), nums(1.5, -2, 3)))
				So(err, ShouldBeNil)
				So(v, ShouldEqual, 0.0)
			}
		})

		Convey("Then cross entropy is approximately 0", func() {
			v, err := metric.Evaluate(metric.CrossEntropy, pairs(labels, labels))
			So(err, ShouldBeNil)
			So(v, ShouldAlmostEqual, 0.0, 1e-12)
		})

		Convey("Then roc_auc is 1 for separating scores", func() {
			v, err := metric.Evaluate(metric.ROCAUC, pairs(nums(0.9, 0.1, 0.8), nums(1, 0, 1)))
			So(err, ShouldBeNil)
			So(v, ShouldEqual, 1.0)
		})
	})
}

func TestAccuracy(t *testing.T) {
	Convey("Given mixed class representations", t, func() {
		pred := []table.Value{table.Num(1.0), table.Cat("dog"), table.Num(0.4), table.Cat("1")}
		truth := []table.Value{table.Cat("1"), table.Cat("cat"), table.Num(0), table.Num(2)}

		Convey("Then numbers are compared as rounded classes", func() {
			v, err := metric.Evaluate(metric.Accuracy, pairs(pred, truth))
			So(err, ShouldBeNil)
			So(v, ShouldEqual, 0.5)
		})
	})
}

func TestMacroF1(t *testing.T) {
	Convey("Given a three-class problem", t, func() {
		// a: tp=1 fn=1 -> 2/3; b: tp=1 fp=1 -> 2/3; c: tp=1 -> 1
		truth := cats("a", "a", "b", "c")
		pred := cats("a", "b", "b", "c")

		v, err := metric.Evaluate(metric.F1, pairs(pred, truth))
		So(err, ShouldBeNil)
		So(v, ShouldAlmostEqual, (2.0/3+2.0/3+1)/3, 1e-12)
	})

	Convey("Given predictions of a class absent from the labels", t, func() {
		// labels {a, b}; "z" only appears in predictions.
		// a: tp=1 fn=1 -> 2/3; b: tp=1 -> 1. z is excluded from the average.
		truth := cats("a", "a", "b")
		pred := cats("a", "z", "b")

		v, err := metric.Evaluate(metric.F1, pairs(pred, truth))
		So(err, ShouldBeNil)
		So(v, ShouldAlmostEqual, (2.0/3+1)/2, 1e-12)
	})

	Convey("Given a label class that is never predicted", t, func() {
		// b is counted with F1 = 0; a: tp=2 fp=1 -> 0.8.
		truth := cats("a", "a", "b")
		pred := cats("a", "a", "a")

		v, err := metric.Evaluate(metric.F1, pairs(pred, truth))
		So(err, ShouldBeNil)
		So(v, ShouldAlmostEqual, 0.4, 1e-12)
	})
}

func TestROCAUC(t *testing.T) {
	Convey("Given scores with ties", t, func() {
		// positives at 0.5 and 0.8, negatives at 0.5 and 0.2:
		// pairs (0.8>0.5),(0.8>0.2),(0.5=0.5 -> 0.5),(0.5>0.2) => 3.5/4
		v, err := metric.Evaluate(metric.ROCAUC, pairs(nums(0.5, 0.8, 0.5, 0.2), nums(1, 1, 0, 0)))
		So(err, ShouldBeNil)
		So(v, ShouldEqual, 0.875)
	})

	Convey("Given inverted scores", t, func() {
		v, err := metric.Evaluate(metric.ROCAUC, pairs(nums(0.1, 0.9), nums(1, 0)))
		So(err, ShouldBeNil)
		So(v, ShouldEqual, 0.0)
	})

	Convey("Given labels of a single class", t, func() {
		Convey("Then it fails regardless of predictions", func() {
			_, err := metric.Evaluate(metric.ROCAUC, pairs(nums(0.2, 0.7), nums(1, 1)))
			So(apperr.KindOf(err), ShouldEqual, apperr.KindMetric)
			So(err.Error(), ShouldContainSubstring, "undefined: single class")

			_, err = metric.Evaluate(metric.ROCAUC, pairs(cats("x", "y"), nums(1, 1)))
			So(apperr.KindOf(err), ShouldEqual, apperr.KindMetric)
		})
	})

	Convey("Given non-binary labels", t, func() {
		_, err := metric.Evaluate(metric.ROCAUC, pairs(nums(0.2, 0.7), nums(0, 2)))
		So(apperr.KindOf(err), ShouldEqual, apperr.KindMetric)
	})

	Convey("Given categorical predictions", t, func() {
		_, err := metric.Evaluate(metric.ROCAUC, pairs(cats("hi", "lo"), nums(0, 1)))
		So(apperr.KindOf(err), ShouldEqual, apperr.KindTypeMismatch)
	})
}

func TestCrossEntropy(t *testing.T) {
	Convey("Given probabilities", t, func() {
		v, err := metric.Evaluate(metric.CrossEntropy, pairs(nums(0.8, 0.4), nums(1, 0)))
		So(err, ShouldBeNil)
		So(v, ShouldAlmostEqual, (-math.Log(0.8)-math.Log(0.6))/2, 1e-12)
	})

	Convey("Given probabilities outside (0,1)", t, func() {
		v, err := metric.Evaluate(metric.CrossEntropy, pairs(nums(0, 1.5, -3), nums(1, 0, 0)))

		Convey("Then they are clipped and the result is finite", func() {
			So(err, ShouldBeNil)
			So(math.IsInf(v, 0), ShouldBeFalse)
			So(v, ShouldAlmostEqual, 2*-math.Log(metric.Epsilon)/3, 0.1)
		})
	})
}

func TestRegression(t *testing.T) {
	Convey("Given predictions off by 2 each", t, func() {
		p := pairs(nums(12, 18), nums(10, 20))

		mae, err := metric.Evaluate(metric.MAE, p)
		So(err, ShouldBeNil)
		So(mae, ShouldEqual, 2.0)

		mse, err := metric.Evaluate(metric.MSE, p)
		So(err, ShouldBeNil)
		So(mse, ShouldEqual, 4.0)

		rmse, err := metric.Evaluate(metric.RMSE, p)
		So(err, ShouldBeNil)
		So(rmse, ShouldEqual, 2.0)
	})

	Convey("Given growing absolute errors", t, func() {
		truth := nums(1, 2, 3)
		prev := map[metric.Kind]float64{}
		for _, off := range []float64{0, 0.5, 1, 3} {
			pred := nums(1+off, 2-off, 3+off)
			for _, k := range []metric.Kind{metric.MAE, metric.MSE, metric.RMSE} {
				v, err := metric.Evaluate(k, pairs(pred, truth))
				So(err, ShouldBeNil)
				So(v, ShouldBeGreaterThanOrEqualTo, prev[k])
				prev[k] = v
			}
		}
	})

	Convey("Given a non-numeric value", t, func() {
		_, err := metric.Evaluate(metric.MAE, pairs(cats("ten"), nums(10)))
		So(apperr.KindOf(err), ShouldEqual, apperr.KindTypeMismatch)

		_, err = metric.Evaluate(metric.RMSE, pairs(nums(1), cats("n/a")))
		So(apperr.KindOf(err), ShouldEqual, apperr.KindTypeMismatch)
	})
}

func TestNoPairs(t *testing.T) {
	Convey("Given no aligned rows", t, func() {
		_, err := metric.Evaluate(metric.Accuracy, nil)
		So(apperr.KindOf(err), ShouldEqual, apperr.KindAlignment)
	})
}
