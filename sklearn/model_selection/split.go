// Package model_selection はデータ分割ユーティリティを提供します。
package model_selection

import (
	"math"
	"math/rand/v2"
	"slices"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/irisml/pkg/errors"
	"github.com/YuminosukeSato/irisml/pkg/log"
)

// DefaultTestSize はscikit-learnのtrain_test_splitと同じ既定値
const DefaultTestSize = 0.25

// Split はtrain/testに分割されたデータ
type Split struct {
	XTrain, XTest *mat.Dense
	YTrain, YTest *mat.VecDense

	// TrainIndices, TestIndices は元データの行番号
	TrainIndices []int
	TestIndices  []int
}

type splitConfig struct {
	testSize    float64
	randomState *uint64
	shuffle     bool
	stratify    bool
}

// SplitOption はTrainTestSplitのオプション
type SplitOption func(*splitConfig)

// WithTestSize はテストデータの割合 (0, 1) を設定する
func WithTestSize(size float64) SplitOption {
	return func(c *splitConfig) { c.testSize = size }
}

// WithRandomState はシャッフルの乱数シードを固定する
// 未指定の場合は実行ごとに異なる分割になる
func WithRandomState(seed uint64) SplitOption {
	return func(c *splitConfig) { c.randomState = &seed }
}

// WithShuffle は分割前にシャッフルするかどうかを設定する (デフォルト: true)
func WithShuffle(shuffle bool) SplitOption {
	return func(c *splitConfig) { c.shuffle = shuffle }
}

// WithStratify はクラス比率を保った層化分割を有効にする
func WithStratify(stratify bool) SplitOption {
	return func(c *splitConfig) { c.stratify = stratify }
}

// TrainTestSplit はXとyをtrain/testに分割する
// テスト件数は ceil(testSize × n_samples)、残りが訓練件数になる
//
// 使用例:
//
//	split, err := model_selection.TrainTestSplit(X, y,
//	    model_selection.WithTestSize(0.2),
//	    model_selection.WithRandomState(42),
//	)
func TrainTestSplit(X mat.Matrix, y mat.Vector, opts ...SplitOption) (*Split, error) {
	cfg := &splitConfig{testSize: DefaultTestSize, shuffle: true}
	for _, opt := range opts {
		opt(cfg)
	}

	nSamples, nFeatures := X.Dims()
	if nSamples == 0 || nFeatures == 0 {
		return nil, errors.NewModelError("TrainTestSplit", "empty data", errors.ErrEmptyData)
	}
	if y.Len() != nSamples {
		return nil, errors.NewDimensionError("TrainTestSplit", nSamples, y.Len(), 0)
	}
	if math.IsNaN(cfg.testSize) || cfg.testSize <= 0 || cfg.testSize >= 1 {
		return nil, errors.NewValidationError("test_size", "must be in the open interval (0, 1)", cfg.testSize)
	}
	if cfg.stratify && !cfg.shuffle {
		return nil, errors.NewValidationError("stratify", "stratified split requires shuffle=true", cfg.stratify)
	}

	nTest := int(math.Ceil(cfg.testSize * float64(nSamples)))
	nTrain := nSamples - nTest
	if nTest < 1 || nTrain < 1 {
		return nil, errors.NewValidationError("test_size",
			"resulting train or test set would be empty", cfg.testSize)
	}

	var rng *rand.Rand
	if cfg.randomState != nil {
		rng = rand.New(rand.NewPCG(*cfg.randomState, *cfg.randomState))
	} else {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	var trainIdx, testIdx []int
	switch {
	case cfg.stratify:
		trainIdx, testIdx = stratifiedIndices(y, nTest, rng)
	case cfg.shuffle:
		perm := rng.Perm(nSamples)
		testIdx, trainIdx = perm[:nTest], perm[nTest:]
	default:
		all := lo.Range(nSamples)
		trainIdx, testIdx = all[:nTrain], all[nTrain:]
	}

	split := &Split{
		XTrain:       takeRows(X, trainIdx),
		XTest:        takeRows(X, testIdx),
		YTrain:       takeElems(y, trainIdx),
		YTest:        takeElems(y, testIdx),
		TrainIndices: trainIdx,
		TestIndices:  testIdx,
	}

	log.GetLoggerWithName("model_selection").Debug("train/test split",
		log.SamplesKey, nSamples,
		log.TestSizeKey, cfg.testSize,
		"train.samples", len(trainIdx),
		"test.samples", len(testIdx),
	)
	return split, nil
}

// stratifiedIndices はクラスごとにシャッフルし、テスト件数をクラス比率で配分する
// 端数は小数部の大きいクラスから順に割り当てる
func stratifiedIndices(y mat.Vector, nTest int, rng *rand.Rand) (trainIdx, testIdx []int) {
	n := y.Len()
	classIndices := make(map[float64][]int)
	for i := 0; i < n; i++ {
		label := y.AtVec(i)
		classIndices[label] = append(classIndices[label], i)
	}
	// mapの走査順に依存しないようにラベル順で処理する
	labels := lo.Keys(classIndices)
	slices.Sort(labels)

	type alloc struct {
		label float64
		count int
		frac  float64
	}
	allocs := make([]alloc, len(labels))
	assigned := 0
	for i, label := range labels {
		exact := float64(nTest) * float64(len(classIndices[label])) / float64(n)
		allocs[i] = alloc{label: label, count: int(exact), frac: exact - math.Floor(exact)}
		assigned += allocs[i].count
	}
	order := lo.Range(len(allocs))
	slices.SortStableFunc(order, func(a, b int) int {
		switch {
		case allocs[a].frac > allocs[b].frac:
			return -1
		case allocs[a].frac < allocs[b].frac:
			return 1
		default:
			return 0
		}
	})
	for k := 0; assigned < nTest; k = (k + 1) % len(order) {
		a := &allocs[order[k]]
		if a.count < len(classIndices[a.label]) {
			a.count++
			assigned++
		}
	}

	for _, a := range allocs {
		indices := classIndices[a.label]
		rng.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})
		testIdx = append(testIdx, indices[:a.count]...)
		trainIdx = append(trainIdx, indices[a.count:]...)
	}
	// クラス順に並ばないよう全体もシャッフルする
	rng.Shuffle(len(testIdx), func(i, j int) { testIdx[i], testIdx[j] = testIdx[j], testIdx[i] })
	rng.Shuffle(len(trainIdx), func(i, j int) { trainIdx[i], trainIdx[j] = trainIdx[j], trainIdx[i] })
	return trainIdx, testIdx
}

func takeRows(X mat.Matrix, indices []int) *mat.Dense {
	_, c := X.Dims()
	out := mat.NewDense(len(indices), c, nil)
	for i, idx := range indices {
		for j := 0; j < c; j++ {
			out.Set(i, j, X.At(idx, j))
		}
	}
	return out
}

func takeElems(y mat.Vector, indices []int) *mat.VecDense {
	out := mat.NewVecDense(len(indices), nil)
	for i, idx := range indices {
		out.SetVec(i, y.AtVec(idx))
	}
	return out
}
