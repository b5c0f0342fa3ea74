// Package scoring turns matched (true, predicted) pairs into an F1 score.
//
// Raw predictions may be class labels, probabilities or arbitrary scores.
// They are first reduced to class labels by a fixed binarization policy and
// then scored with sklearn-compatible precision, recall and F1 (zero when a
// ratio is undefined).
package scoring

import (
	"fmt"
	"math"
	"slices"

	"github.com/okian/evalboard/internal/domain/evalerr"
)

// Default scoring configuration constants.
const (
	DefaultThreshold = 0.5
	defaultEpsilon   = 1e-9
	integralTol      = 1e-8
)

// Average selects how per-class F1 values are combined.
type Average string

// Supported averages.
const (
	Macro    Average = "macro"
	Weighted Average = "weighted"
)

// ParseAverage validates a configured average name.
func ParseAverage(s string) (Average, error) {
	switch Average(s) {
	case Macro, Weighted:
		return Average(s), nil
	case "":
		return Macro, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAverage, s)
	}
}

// Binarization names the transform applied to raw predictions.
type Binarization string

// Binarization modes.
const (
	BinarizeNone      Binarization = "none"
	BinarizeThreshold Binarization = "threshold"
	BinarizeMinMax    Binarization = "minmax"
)

// Option applies a configuration option to the Scorer.
type Option func(*Scorer)

// WithThreshold sets the probability cut-off. Values outside (0,1) are ignored.
func WithThreshold(t float64) Option {
	return func(s *Scorer) {
		if t > 0 && t < 1 {
			s.threshold = t
		}
	}
}

// WithAverage sets the F1 average.
func WithAverage(a Average) Option {
	return func(s *Scorer) {
		if a == Macro || a == Weighted {
			s.average = a
		}
	}
}

// ClassReport holds the per-class figures of a classification report.
type ClassReport struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// Result is the outcome of ClassifyAndScore.
type Result struct {
	Score     float64 // F1 in [0,1]
	Binarized bool
	Mode      Binarization
	Accuracy  float64
	Average   Average
	Labels    []int   // sorted union of true and predicted classes
	Confusion [][]int // rows are true classes, columns predicted, in Labels order
	Report    map[int]ClassReport
	YPred     []int
}

// Scorer computes F1 from raw predictions.
type Scorer struct {
	threshold float64
	epsilon   float64
	average   Average
}

// New creates a scorer with configuration options.
func New(opts ...Option) *Scorer {
	s := &Scorer{
		threshold: DefaultThreshold,
		epsilon:   defaultEpsilon,
		average:   Macro,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Threshold returns the configured probability cut-off.
func (s *Scorer) Threshold() float64 { return s.threshold }

// Average returns the configured average.
func (s *Scorer) Average() Average { return s.average }

var defaultScorer = New()

// ClassifyAndScore scores with the default macro-F1 scorer.
func ClassifyAndScore(yTrue []int, yPredRaw []float64) (Result, error) {
	return defaultScorer.ClassifyAndScore(yTrue, yPredRaw)
}

// ClassifyAndScore binarizes yPredRaw when needed and scores it against yTrue.
func (s *Scorer) ClassifyAndScore(yTrue []int, yPredRaw []float64) (Result, error) {
	const op = "scoring.classify_and_score"

	if len(yTrue) == 0 {
		return Result{}, evalerr.Wrap(op, evalerr.ErrValidation, ErrEmptyInput)
	}
	if len(yTrue) != len(yPredRaw) {
		return Result{}, evalerr.Wrap(op, evalerr.ErrValidation,
			fmt.Errorf("%w: %d labels, %d predictions", ErrLengthMismatch, len(yTrue), len(yPredRaw)))
	}
	for i, v := range yPredRaw {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Result{}, evalerr.Wrap(op, evalerr.ErrValidation,
				fmt.Errorf("%w at position %d", ErrNonFinite, i))
		}
	}

	yPred, mode := s.Binarize(yTrue, yPredRaw)
	res := score(yTrue, yPred, s.average)
	res.Mode = mode
	res.Binarized = mode != BinarizeNone
	res.YPred = yPred
	return res, nil
}

// Binarize reduces raw predictions to class labels:
//   - integral values in {0,1}, or integral values that are all classes of
//     yTrue, are used as-is;
//   - values within [0,1] are thresholded;
//   - anything else is min-max scaled and then thresholded.
func (s *Scorer) Binarize(yTrue []int, raw []float64) ([]int, Binarization) {
	out := make([]int, len(raw))

	if allIntegral(raw) {
		classes := make(map[int]struct{}, len(yTrue))
		for _, c := range yTrue {
			classes[c] = struct{}{}
		}
		binary, known := true, true
		for i, v := range raw {
			c := int(math.Round(v))
			out[i] = c
			if c != 0 && c != 1 {
				binary = false
			}
			if _, ok := classes[c]; !ok {
				known = false
			}
		}
		if binary || known {
			return out, BinarizeNone
		}
	}

	lo, hi := slices.Min(raw), slices.Max(raw)
	if lo >= 0 && hi <= 1 {
		for i, v := range raw {
			out[i] = s.cut(v)
		}
		return out, BinarizeThreshold
	}

	span := hi - lo + s.epsilon
	for i, v := range raw {
		out[i] = s.cut((v - lo) / span)
	}
	return out, BinarizeMinMax
}

func (s *Scorer) cut(v float64) int {
	if v >= s.threshold {
		return 1
	}
	return 0
}

func allIntegral(xs []float64) bool {
	for _, v := range xs {
		if math.Abs(v-math.Round(v)) > integralTol {
			return false
		}
	}
	return true
}

func score(yTrue, yPred []int, avg Average) Result {
	labels := unionSorted(yTrue, yPred)
	pos := make(map[int]int, len(labels))
	for i, l := range labels {
		pos[l] = i
	}

	cm := make([][]int, len(labels))
	for i := range cm {
		cm[i] = make([]int, len(labels))
	}
	correct := 0
	for i := range yTrue {
		cm[pos[yTrue[i]]][pos[yPred[i]]]++
		if yTrue[i] == yPred[i] {
			correct++
		}
	}

	report := make(map[int]ClassReport, len(labels))
	var sumF1, weightedF1 float64
	total := len(yTrue)
	for i, l := range labels {
		tp := cm[i][i]
		var predicted, support int
		for j := range labels {
			predicted += cm[j][i]
			support += cm[i][j]
		}
		r := ClassReport{
			Precision: ratio(tp, predicted),
			Recall:    ratio(tp, support),
			F1:        ratio(2*tp, predicted+support),
			Support:   support,
		}
		report[l] = r
		sumF1 += r.F1
		weightedF1 += r.F1 * float64(support)
	}

	res := Result{
		Average:   avg,
		Labels:    labels,
		Confusion: cm,
		Report:    report,
		Accuracy:  ratio(correct, total),
	}
	switch avg {
	case Weighted:
		res.Score = weightedF1 / float64(total)
	default:
		res.Score = sumF1 / float64(len(labels))
	}
	return res
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func unionSorted(a, b []int) []int {
	seen := make(map[int]struct{}, 4)
	out := make([]int, 0, 4)
	for _, xs := range [][]int{a, b} {
		for _, x := range xs {
			if _, ok := seen[x]; !ok {
				seen[x] = struct{}{}
				out = append(out, x)
			}
		}
	}
	slices.Sort(out)
	return out
}
