package pipeline

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/irisml/metrics"
	"github.com/YuminosukeSato/irisml/pkg/errors"
	"github.com/YuminosukeSato/irisml/sklearn/linear_model"
)

// Evaluation is the outcome of scoring the fitted model on the test set.
type Evaluation struct {
	Accuracy       float64
	Threshold      float64
	BelowThreshold bool

	Truth       *mat.VecDense
	Predictions *mat.VecDense
	// Confusion は行が正解、列が予測。Labels が行・列の順序
	Confusion *mat.Dense
	Labels    []int
	// PerClass は ComputePerClass を呼ぶまで nil
	PerClass []metrics.ClassReport
}

// Evaluate predicts X, compares with y and flags accuracy below threshold.
// Per-class metrics are left to ComputePerClass.
func Evaluate(clf *linear_model.LogisticRegression, X mat.Matrix, y *mat.VecDense, threshold float64) (*Evaluation, error) {
	pred, err := clf.Predict(X)
	if err != nil {
		return nil, err
	}
	yPred, ok := pred.(*mat.VecDense)
	if !ok {
		rows, _ := pred.Dims()
		yPred = mat.NewVecDense(rows, mat.Col(nil, 0, pred))
	}

	acc, err := metrics.Accuracy(y, yPred)
	if err != nil {
		return nil, err
	}
	if acc < 0 || acc > 1 {
		return nil, errors.NewValueError("Evaluate", "accuracy outside [0, 1]")
	}

	cm, labels, err := metrics.ConfusionMatrix(y, yPred, clf.Classes())
	if err != nil {
		return nil, err
	}
	return &Evaluation{
		Accuracy:       acc,
		Threshold:      threshold,
		BelowThreshold: acc < threshold,
		Truth:          y,
		Predictions:    yPred,
		Confusion:      cm,
		Labels:         labels,
	}, nil
}

// ComputePerClass fills PerClass from the confusion matrix. Labels with no
// predicted or true samples raise an UndefinedMetricWarning.
func (e *Evaluation) ComputePerClass() error {
	perClass, err := metrics.PrecisionRecallF1(e.Confusion, e.Labels)
	if err != nil {
		return err
	}
	e.PerClass = perClass
	return nil
}
