// Package datasets はscikit-learn互換の組み込みデータセットを提供します。
package datasets

import (
	"bytes"
	_ "embed"
	"encoding/csv"
	"io"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/irisml/pkg/errors"
)

//go:embed data/iris.csv
var irisCSV []byte

// irisFeatureNames はscikit-learnのload_irisと同じ列名
var irisFeatureNames = []string{
	"sepal length (cm)",
	"sepal width (cm)",
	"petal length (cm)",
	"petal width (cm)",
}

// Bunch はデータセットの特徴量とラベルをまとめた構造体
// ロード後は変更しないこと
type Bunch struct {
	// Data は特徴量行列 (n_samples × n_features)
	Data *mat.Dense
	// Target はクラスラベル (0..n_classes-1)
	Target *mat.VecDense
	// FeatureNames は各列の名前
	FeatureNames []string
	// TargetNames は各クラスの名前
	TargetNames []string
}

// NSamples はサンプル数を返す
func (b *Bunch) NSamples() int {
	r, _ := b.Data.Dims()
	return r
}

// NFeatures は特徴量数を返す
func (b *Bunch) NFeatures() int {
	_, c := b.Data.Dims()
	return c
}

// LoadIris はバイナリに埋め込まれたIrisデータセット(150 × 4, 3クラス)を読み込む
//
// 使用例:
//
//	iris, err := datasets.LoadIris()
//	if err != nil {
//	    return err
//	}
//	X, y := iris.Data, iris.Target
func LoadIris() (*Bunch, error) {
	bunch, err := parseBunch(bytes.NewReader(irisCSV), irisFeatureNames)
	if err != nil {
		return nil, errors.Wrap(err, "load iris")
	}
	return bunch, nil
}

// parseBunch はscikit-learnのデータファイル形式を解析する
// 1行目: n_samples,n_features,<クラス名...>
// 以降: 特徴量...,ラベル
func parseBunch(r io.Reader, featureNames []string) (*Bunch, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "read csv")
	}
	if len(rows) == 0 || len(rows[0]) < 2 {
		return nil, errors.NewValueError("parseBunch", "missing header line")
	}

	header := rows[0]
	nSamples, err := strconv.Atoi(header[0])
	if err != nil {
		return nil, errors.Wrapf(err, "parse n_samples %q", header[0])
	}
	nFeatures, err := strconv.Atoi(header[1])
	if err != nil {
		return nil, errors.Wrapf(err, "parse n_features %q", header[1])
	}
	targetNames := append([]string{}, header[2:]...)

	records := rows[1:]
	if len(records) != nSamples {
		return nil, errors.NewDimensionError("parseBunch", nSamples, len(records), 0)
	}
	if len(featureNames) != nFeatures {
		return nil, errors.NewDimensionError("parseBunch", len(featureNames), nFeatures, 1)
	}

	data := mat.NewDense(nSamples, nFeatures, nil)
	target := mat.NewVecDense(nSamples, nil)
	for i, row := range records {
		if len(row) != nFeatures+1 {
			return nil, errors.NewDimensionError("parseBunch", nFeatures+1, len(row), 1)
		}
		for j, cell := range row[:nFeatures] {
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "parse row %d column %d", i+1, j)
			}
			data.Set(i, j, v)
		}
		label, err := strconv.Atoi(row[nFeatures])
		if err != nil {
			return nil, errors.Wrapf(err, "parse label of row %d", i+1)
		}
		if label < 0 || label >= len(targetNames) {
			return nil, errors.NewValueError("parseBunch", "label "+row[nFeatures]+" has no target name")
		}
		target.SetVec(i, float64(label))
	}

	return &Bunch{
		Data:         data,
		Target:       target,
		FeatureNames: append([]string{}, featureNames...),
		TargetNames:  targetNames,
	}, nil
}
