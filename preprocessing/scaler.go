// Package preprocessing はscikit-learn互換の前処理を提供します。
package preprocessing

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/irisml/core/model"
	"github.com/YuminosukeSato/irisml/core/parallel"
	"github.com/YuminosukeSato/irisml/pkg/errors"
	"github.com/YuminosukeSato/irisml/pkg/log"
)

// 標準偏差がこれ未満の列はスケール1として扱う
const zeroScaleTolerance = 1e-8

// StandardScaler はscikit-learn互換の標準化スケーラー
// データを平均0、標準偏差1に変換する
type StandardScaler struct {
	state *model.StateManager

	// Mean は各特徴量の平均値
	Mean []float64

	// Scale は各特徴量の標準偏差（母標準偏差）
	Scale []float64

	// WithMean は平均を引くかどうか (デフォルト: true)
	WithMean bool

	// WithStd は標準偏差で割るかどうか (デフォルト: true)
	WithStd bool
}

var (
	_ model.InverseTransformer = (*StandardScaler)(nil)
	_ model.ParameterGetter    = (*StandardScaler)(nil)
)

// NewStandardScaler は新しいStandardScalerを作成する
//
// 使用例:
//
//	scaler := preprocessing.NewStandardScaler(true, true)
//	XTrainScaled, err := scaler.FitTransform(XTrain)
//	XTestScaled, err := scaler.Transform(XTest)
func NewStandardScaler(withMean, withStd bool) *StandardScaler {
	return &StandardScaler{
		state:    model.NewStateManager(),
		WithMean: withMean,
		WithStd:  withStd,
	}
}

// NewStandardScalerDefault はデフォルト設定でStandardScalerを作成する
func NewStandardScalerDefault() *StandardScaler {
	return NewStandardScaler(true, true)
}

// Fit は訓練データから統計情報（平均、母標準偏差）を計算する
func (s *StandardScaler) Fit(X mat.Matrix) (err error) {
	defer errors.Recover(&err, "StandardScaler.Fit")
	if s.state == nil {
		s.state = model.NewStateManager()
	}

	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("StandardScaler.Fit", "empty data", errors.ErrEmptyData)
	}

	mean := make([]float64, c)
	scale := make([]float64, c)
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, X)
		m, std := stat.PopMeanStdDev(col, nil)
		if !s.WithMean {
			m = 0
		}
		if !s.WithStd || math.Abs(std) < zeroScaleTolerance {
			std = 1.0
		}
		mean[j], scale[j] = m, std
	}
	if err := errors.CheckNumericalStability("StandardScaler.Fit", append(append([]float64{}, mean...), scale...), 0); err != nil {
		return err
	}

	s.Mean, s.Scale = mean, scale
	s.state.SetFitted(c, r)

	log.GetLoggerWithName("preprocessing").Debug("StandardScaler fitted",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, r,
		log.FeaturesKey, c,
	)
	return nil
}

// Transform は学習済みの統計情報を使ってデータを標準化する
func (s *StandardScaler) Transform(X mat.Matrix) (mat.Matrix, error) {
	return s.standardize("Transform", log.OperationTransform, X)
}

// FitTransform は訓練データで学習し、同じデータを変換する
func (s *StandardScaler) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.standardize("FitTransform", log.OperationFitTransform, X)
}

func (s *StandardScaler) standardize(method, op string, X mat.Matrix) (mat.Matrix, error) {
	return s.apply(method, op, X, func(v float64, j int) float64 {
		return (v - s.Mean[j]) / s.Scale[j]
	})
}

// InverseTransform は標準化されたデータを元のスケールに戻す
func (s *StandardScaler) InverseTransform(X mat.Matrix) (mat.Matrix, error) {
	return s.apply("InverseTransform", log.OperationInverseTransform, X, func(v float64, j int) float64 {
		return v*s.Scale[j] + s.Mean[j]
	})
}

// apply は要素ごとの変換を行ごとに並列で適用する
func (s *StandardScaler) apply(method, op string, X mat.Matrix, f func(v float64, j int) float64) (mat.Matrix, error) {
	if s.state == nil {
		return nil, errors.NewNotFittedError("StandardScaler", method)
	}
	if err := s.state.RequireFitted("StandardScaler", method); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if err := s.state.RequireFeatures("StandardScaler."+method, c); err != nil {
		return nil, err
	}

	result := mat.NewDense(r, c, nil)
	parallel.ParallelizeWithThreshold(r, parallel.DefaultThreshold, func(start, end int) {
		for i := start; i < end; i++ {
			for j := 0; j < c; j++ {
				result.Set(i, j, f(X.At(i, j), j))
			}
		}
	})

	log.GetLoggerWithName("preprocessing").Debug("StandardScaler "+method+" complete",
		log.OperationKey, op,
		log.SamplesKey, r,
	)
	return result, nil
}

// IsFitted はスケーラーが学習済みかどうかを返す
func (s *StandardScaler) IsFitted() bool {
	return s.state != nil && s.state.IsFitted()
}

// NFeatures は学習時の特徴量数を返す
func (s *StandardScaler) NFeatures() int {
	if s.state == nil {
		return 0
	}
	n, _ := s.state.Dimensions()
	return n
}

// GetParams はスケーラーのパラメータを取得する
func (s *StandardScaler) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"with_mean": s.WithMean,
		"with_std":  s.WithStd,
	}
}

// String はスケーラーの文字列表現を返す
func (s *StandardScaler) String() string {
	if !s.IsFitted() {
		return fmt.Sprintf("StandardScaler(with_mean=%t, with_std=%t)", s.WithMean, s.WithStd)
	}
	return fmt.Sprintf("StandardScaler(with_mean=%t, with_std=%t, n_features=%d)",
		s.WithMean, s.WithStd, s.NFeatures())
}
