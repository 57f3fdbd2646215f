package metrics

import (
	"fmt"
	"slices"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/irisml/pkg/errors"
)

// checkPair は2つのラベルベクトルの長さを検証する
func checkPair(op string, yTrue, yPred *mat.VecDense) (int, error) {
	if yTrue == nil || yPred == nil || yTrue.IsEmpty() || yPred.IsEmpty() {
		return 0, errors.NewValueError(op, "empty vector")
	}
	n := yTrue.Len()
	if yPred.Len() != n {
		return 0, errors.NewDimensionError(op, n, yPred.Len(), 0)
	}
	return n, nil
}

// Accuracy は正解率（予測ラベルが正解と一致した割合）を計算する
func Accuracy(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("Accuracy", yTrue, yPred)
	if err != nil {
		return 0, err
	}

	correct := 0
	for i := 0; i < n; i++ {
		if yTrue.AtVec(i) == yPred.AtVec(i) {
			correct++
		}
	}
	return float64(correct) / float64(n), nil
}

// ClassificationError は誤分類率 (1 - Accuracy) を計算する
func ClassificationError(yTrue, yPred *mat.VecDense) (float64, error) {
	acc, err := Accuracy(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return 1 - acc, nil
}

// AccuracyMatrix は行列形式の入力に対して正解率を計算する
// 複数列の場合は先頭列を使う
func AccuracyMatrix(yTrue, yPred mat.Matrix) (float64, error) {
	yTrueVec, err := firstColumn("AccuracyMatrix", yTrue)
	if err != nil {
		return 0, err
	}
	yPredVec, err := firstColumn("AccuracyMatrix", yPred)
	if err != nil {
		return 0, err
	}
	return Accuracy(yTrueVec, yPredVec)
}

func firstColumn(op string, m mat.Matrix) (*mat.VecDense, error) {
	if m == nil {
		return nil, errors.NewValueError(op, "nil matrix")
	}
	if v, ok := m.(*mat.VecDense); ok {
		return v, nil
	}
	r, c := m.Dims()
	if r == 0 || c == 0 {
		return nil, errors.NewValueError(op, "empty matrix")
	}
	return mat.NewVecDense(r, mat.Col(nil, 0, m)), nil
}

// ConfusionMatrix は混同行列を計算する
// 行が正解ラベル、列が予測ラベル。labels が nil の場合は両方に現れるラベルを昇順で使う
//
// 戻り値:
//   - *mat.Dense: len(labels) × len(labels) のカウント行列
//   - []int: 行・列に対応するラベル
func ConfusionMatrix(yTrue, yPred *mat.VecDense, labels []int) (*mat.Dense, []int, error) {
	n, err := checkPair("ConfusionMatrix", yTrue, yPred)
	if err != nil {
		return nil, nil, err
	}

	if labels == nil {
		all := make([]int, 0, 2*n)
		for i := 0; i < n; i++ {
			all = append(all, int(yTrue.AtVec(i)), int(yPred.AtVec(i)))
		}
		labels = lo.Uniq(all)
		slices.Sort(labels)
	}
	if len(labels) == 0 {
		return nil, nil, errors.NewValueError("ConfusionMatrix", "labels must not be empty")
	}

	index := make(map[int]int, len(labels))
	for i, l := range labels {
		index[l] = i
	}

	cm := mat.NewDense(len(labels), len(labels), nil)
	for i := 0; i < n; i++ {
		t, okT := index[int(yTrue.AtVec(i))]
		p, okP := index[int(yPred.AtVec(i))]
		// labelsに含まれないサンプルは数えない
		if !okT || !okP {
			continue
		}
		cm.Set(t, p, cm.At(t, p)+1)
	}
	return cm, labels, nil
}

// ClassReport は1クラス分の適合率・再現率・F1スコア
type ClassReport struct {
	Label     int
	Precision float64
	Recall    float64
	F1        float64
	Support   int
}

// PrecisionRecallF1 は混同行列からクラスごとの指標を計算する
// 分母が0になる指標は0とし、UndefinedMetricWarningを発生させる
func PrecisionRecallF1(cm mat.Matrix, labels []int) ([]ClassReport, error) {
	r, c := cm.Dims()
	if r != c {
		return nil, errors.NewDimensionError("PrecisionRecallF1", r, c, 1)
	}
	if len(labels) != r {
		return nil, errors.NewDimensionError("PrecisionRecallF1", r, len(labels), 0)
	}

	reports := make([]ClassReport, r)
	for k := 0; k < r; k++ {
		tp := cm.At(k, k)
		predicted := lo.SumBy(lo.Range(r), func(i int) float64 { return cm.At(i, k) })
		actual := lo.SumBy(lo.Range(r), func(j int) float64 { return cm.At(k, j) })

		rep := ClassReport{Label: labels[k], Support: int(actual)}
		if predicted > 0 {
			rep.Precision = tp / predicted
		} else {
			errors.Warn(errors.NewUndefinedMetricWarning("precision",
				fmt.Sprintf("no predicted samples for label %d", labels[k]), 0))
		}
		if actual > 0 {
			rep.Recall = tp / actual
		} else {
			errors.Warn(errors.NewUndefinedMetricWarning("recall",
				fmt.Sprintf("no true samples for label %d", labels[k]), 0))
		}
		if rep.Precision+rep.Recall > 0 {
			rep.F1 = 2 * rep.Precision * rep.Recall / (rep.Precision + rep.Recall)
		}
		reports[k] = rep
	}
	return reports, nil
}
