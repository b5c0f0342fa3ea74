package evaluation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/okian/evalboard/internal/domain/evalerr"
	"github.com/okian/evalboard/internal/domain/model"
	"github.com/okian/evalboard/internal/domain/scoring"
	"github.com/okian/evalboard/internal/domain/submission"
	"github.com/okian/evalboard/internal/domain/table"
	"github.com/okian/evalboard/pkg/logger"
	"github.com/okian/evalboard/pkg/metrics"
)

// Evaluation is everything shown to the submitter about one file.
type Evaluation struct {
	Fingerprint string `json:"file_fingerprint"`
	Filename    string `json:"filename,omitempty"`

	// Score is the F1 in percent, rounded to four decimals; it is the value
	// recorded in the history.
	Score    float64 `json:"score"`
	F1       float64 `json:"f1"`
	Accuracy float64 `json:"accuracy"`
	Average  string  `json:"average"`

	Binarized    bool    `json:"binarized"`
	Binarization string  `json:"binarization"`
	Threshold    float64 `json:"threshold"`

	NIDs                   int `json:"n_ids"`
	MissingInSubmission    int `json:"missing_in_submission"`
	ExtraInSubmission      int `json:"extra_in_submission"`
	Duplicates             int `json:"duplicates"`
	DroppedNullIDs         int `json:"dropped_null_ids"`
	DroppedNullPredictions int `json:"dropped_null_predictions"`

	Labels    []int                          `json:"labels"`
	Confusion [][]int                        `json:"confusion_matrix"`
	Report    map[string]scoring.ClassReport `json:"report"`

	Warnings []string `json:"warnings,omitempty"`
}

// Option applies a configuration option to the Evaluator.
type Option func(*Evaluator)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Evaluator) {
		if l != nil {
			e.log = l
		}
	}
}

// Evaluator turns an uploaded file into an Evaluation.
type Evaluator struct {
	normalizer *submission.Normalizer
	scorer     *scoring.Scorer
	log        logger.Logger
}

// NewEvaluator creates an evaluator from its collaborators.
func NewEvaluator(n *submission.Normalizer, s *scoring.Scorer, opts ...Option) *Evaluator {
	e := &Evaluator{
		normalizer: n,
		scorer:     s,
		log:        logger.GetOrNop().Named("evaluation"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate parses data, joins it to labels and scores the result. Errors
// are Schema, Validation or NoOverlap kinds.
func (e *Evaluator) Evaluate(ctx context.Context, labels model.LabelTable, filename string, data []byte) (Evaluation, error) {
	const op = "evaluation.evaluate"
	start := time.Now()

	ev, err := e.evaluate(ctx, labels, filename, data)
	if err != nil {
		metrics.RecordEvaluationError(evalerr.Code(err))
		e.log.Info(ctx, "submission rejected",
			logger.String("file", filename),
			logger.String("reason", evalerr.Code(err)),
			logger.Error(err))
		return Evaluation{}, evalerr.WrapOp(op, err)
	}

	metrics.RecordScoringLatency(float64(time.Since(start).Microseconds()) / 1000)
	metrics.RecordBinarization(ev.Binarization)
	metrics.RecordMatchedRows(ev.NIDs)
	metrics.RecordSubmissionScore(ev.Score)
	if ev.Binarization == string(scoring.BinarizeMinMax) {
		e.log.Warn(ctx, "predictions min-max scaled before thresholding",
			logger.String("file", filename),
			logger.String("fingerprint", ev.Fingerprint))
	}
	return ev, nil
}

func (e *Evaluator) evaluate(ctx context.Context, labels model.LabelTable, filename string, data []byte) (Evaluation, error) {
	raw, err := table.ParseBytes(data)
	if err != nil {
		return Evaluation{}, evalerr.Wrap("evaluation.parse", evalerr.ErrSchema, err)
	}
	preds, err := e.normalizer.Normalize(ctx, raw)
	if err != nil {
		return Evaluation{}, err
	}
	matched, err := Match(labels, preds)
	if err != nil {
		return Evaluation{}, err
	}
	res, err := e.scorer.ClassifyAndScore(matched.YTrue, matched.YPred)
	if err != nil {
		return Evaluation{}, err
	}

	ev := Evaluation{
		Fingerprint:            model.Fingerprint(data),
		Filename:               filename,
		Score:                  model.ScorePercent(res.Score),
		F1:                     res.Score,
		Accuracy:               res.Accuracy,
		Average:                string(res.Average),
		Binarized:              res.Binarized,
		Binarization:           string(res.Mode),
		Threshold:              e.scorer.Threshold(),
		NIDs:                   matched.Len(),
		MissingInSubmission:    matched.MissingInSubmission,
		ExtraInSubmission:      matched.ExtraInSubmission,
		Duplicates:             preds.Duplicates,
		DroppedNullIDs:         preds.DroppedNullIDs,
		DroppedNullPredictions: preds.DroppedNullPredictions,
		Labels:                 res.Labels,
		Confusion:              res.Confusion,
		Report:                 make(map[string]scoring.ClassReport, len(res.Report)),
	}
	for label, r := range res.Report {
		ev.Report[strconv.Itoa(label)] = r
	}
	ev.Warnings = e.warnings(ev)
	return ev, nil
}

func (e *Evaluator) warnings(ev Evaluation) []string {
	var w []string
	if ev.MissingInSubmission > 0 {
		w = append(w, fmt.Sprintf("%d ids of the test set are missing from the submission", ev.MissingInSubmission))
	}
	if ev.ExtraInSubmission > 0 {
		w = append(w, fmt.Sprintf("%d submitted ids are not in the test set and were ignored", ev.ExtraInSubmission))
	}
	if ev.Duplicates > 0 {
		w = append(w, fmt.Sprintf("%d duplicate ids resolved with policy %s", ev.Duplicates, e.normalizer.Policy()))
	}
	if ev.DroppedNullIDs > 0 {
		w = append(w, fmt.Sprintf("%d rows without an id were dropped", ev.DroppedNullIDs))
	}
	if ev.DroppedNullPredictions > 0 {
		w = append(w, fmt.Sprintf("%d rows without a prediction were dropped", ev.DroppedNullPredictions))
	}
	switch scoring.Binarization(ev.Binarization) {
	case scoring.BinarizeThreshold:
		w = append(w, fmt.Sprintf("probabilities detected; thresholded at %.2f", ev.Threshold))
	case scoring.BinarizeMinMax:
		w = append(w, fmt.Sprintf("predictions are neither labels nor probabilities; min-max scaled and thresholded at %.2f, treat this score with care", ev.Threshold))
	}
	return w
}
