// Package report renders the evaluation of a pipeline run for humans:
// a metrics table for the terminal and a scatter plot of the test set.
package report

import (
	"fmt"
	"image/color"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/YuminosukeSato/irisml/internal/pipeline"
	"github.com/YuminosukeSato/irisml/pkg/errors"
)

// petal length / petal width
const (
	plotXCol = 2
	plotYCol = 3
)

var classColors = []color.RGBA{
	{R: 228, G: 26, B: 28, A: 255},
	{R: 55, G: 126, B: 184, A: 255},
	{R: 77, G: 175, B: 74, A: 255},
}

// className は表示用のクラス名。名前がなければラベル番号を使う
func className(label int, names []string) string {
	if label >= 0 && label < len(names) {
		return names[label]
	}
	return fmt.Sprint(label)
}

// WriteTables writes the per-class metrics and the confusion matrix of eval.
func WriteTables(w io.Writer, eval *pipeline.Evaluation, targetNames []string) error {
	if eval == nil {
		return errors.NewValueError("report.WriteTables", "no evaluation to report")
	}

	fmt.Fprintf(w, "Accuracy: %.4f (threshold %.2f)\n", eval.Accuracy, eval.Threshold)

	metricsTable := tablewriter.NewWriter(w)
	metricsTable.SetHeader([]string{"Class", "Precision", "Recall", "F1", "Support"})
	for _, rep := range eval.PerClass {
		metricsTable.Append([]string{
			className(rep.Label, targetNames),
			fmt.Sprintf("%.4f", rep.Precision),
			fmt.Sprintf("%.4f", rep.Recall),
			fmt.Sprintf("%.4f", rep.F1),
			fmt.Sprint(rep.Support),
		})
	}
	metricsTable.Render()

	header := append([]string{"true \\ pred"},
		lo.Map(eval.Labels, func(l int, _ int) string { return className(l, targetNames) })...)
	cmTable := tablewriter.NewWriter(w)
	cmTable.SetHeader(header)
	for i, label := range eval.Labels {
		row := []string{className(label, targetNames)}
		for j := range eval.Labels {
			row = append(row, fmt.Sprint(int(eval.Confusion.At(i, j))))
		}
		cmTable.Append(row)
	}
	cmTable.Render()
	return nil
}

// SavePlot draws the test samples on the two petal features, colored by
// true class, with misclassified samples marked by a cross.
// X holds the raw (unscaled) test features.
func SavePlot(path string, X mat.Matrix, eval *pipeline.Evaluation, featureNames, targetNames []string) error {
	if eval == nil {
		return errors.NewValueError("report.SavePlot", "no evaluation to plot")
	}
	rows, cols := X.Dims()
	if cols <= plotYCol {
		return errors.NewDimensionError("report.SavePlot", plotYCol+1, cols, 1)
	}
	yTrue, yPred := eval.Truth, eval.Predictions
	if yTrue.Len() != rows || yPred.Len() != rows {
		return errors.NewDimensionError("report.SavePlot", rows, yPred.Len(), 0)
	}

	p := plot.New()
	p.Title.Text = "Iris test set"
	if len(featureNames) > plotYCol {
		p.X.Label.Text = featureNames[plotXCol]
		p.Y.Label.Text = featureNames[plotYCol]
	}

	var wrong plotter.XYs
	for k, label := range eval.Labels {
		var pts plotter.XYs
		for i := 0; i < rows; i++ {
			if int(yTrue.AtVec(i)) != label {
				continue
			}
			xy := plotter.XY{X: X.At(i, plotXCol), Y: X.At(i, plotYCol)}
			pts = append(pts, xy)
			if yPred.AtVec(i) != yTrue.AtVec(i) {
				wrong = append(wrong, xy)
			}
		}
		if len(pts) == 0 {
			continue
		}
		s, err := plotter.NewScatter(pts)
		if err != nil {
			return errors.Wrap(err, "scatter")
		}
		s.Color = classColors[k%len(classColors)]
		s.Shape = draw.CircleGlyph{}
		p.Add(s)
		p.Legend.Add(className(label, targetNames), s)
	}

	if len(wrong) > 0 {
		s, err := plotter.NewScatter(wrong)
		if err != nil {
			return errors.Wrap(err, "scatter")
		}
		s.Color = color.RGBA{A: 255}
		s.Shape = draw.CrossGlyph{}
		s.Radius = vg.Points(5)
		p.Add(s)
		p.Legend.Add("misclassified", s)
	}

	if err := p.Save(5*vg.Inch, 5*vg.Inch, path); err != nil {
		return errors.Wrapf(err, "save plot %q", path)
	}
	return nil
}
