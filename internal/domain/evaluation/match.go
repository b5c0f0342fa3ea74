// Package evaluation joins a submission to the ground truth and scores it.
package evaluation

import (
	"github.com/okian/evalboard/internal/domain/evalerr"
	"github.com/okian/evalboard/internal/domain/model"
)

// MatchedSet is the inner join of labels and predictions on id, in label
// order.
type MatchedSet struct {
	IDs   []string
	YTrue []int
	YPred []float64
	// MissingInSubmission counts labels without a prediction.
	MissingInSubmission int
	// ExtraInSubmission counts predictions without a label.
	ExtraInSubmission int
}

// Len returns the number of matched ids.
func (m MatchedSet) Len() int { return len(m.IDs) }

// Match joins labels and predictions. Mismatched id sets are reported as
// counts; only an empty join is an error.
func Match(labels model.LabelTable, preds model.PredictionTable) (MatchedSet, error) {
	byID := make(map[string]float64, preds.Len())
	for _, p := range preds.Rows {
		byID[p.ID] = p.Prediction
	}

	n := min(labels.Len(), preds.Len())
	out := MatchedSet{
		IDs:   make([]string, 0, n),
		YTrue: make([]int, 0, n),
		YPred: make([]float64, 0, n),
	}
	for _, l := range labels.Rows {
		p, ok := byID[l.ID]
		if !ok {
			out.MissingInSubmission++
			continue
		}
		out.IDs = append(out.IDs, l.ID)
		out.YTrue = append(out.YTrue, l.Target)
		out.YPred = append(out.YPred, p)
	}
	out.ExtraInSubmission = preds.Len() - out.Len()

	if out.Len() == 0 {
		return out, evalerr.Newf("evaluation.match", evalerr.ErrNoOverlap,
			"none of the %d submitted ids exist in the %d ground truth ids", preds.Len(), labels.Len())
	}
	return out, nil
}
