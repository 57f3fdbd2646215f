// Package pipeline runs the Iris classification workflow: load, split,
// normalize, train and evaluate.
//
// Every stage logs its transition line and produces either a value or an
// error marked with the stage's sentinel. A stage whose input is missing is
// skipped with ErrSkipped instead of running on undefined state.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/irisml/internal/config"
	"github.com/YuminosukeSato/irisml/pkg/errors"
	"github.com/YuminosukeSato/irisml/pkg/log"
	"github.com/YuminosukeSato/irisml/preprocessing"
	"github.com/YuminosukeSato/irisml/sklearn/datasets"
	"github.com/YuminosukeSato/irisml/sklearn/linear_model"
	"github.com/YuminosukeSato/irisml/sklearn/model_selection"
)

// Stage sentinels. Use errors.Is on Result.Err() or a StageReport.Err.
var (
	ErrDataLoad      = errors.New("data load failed")
	ErrSplit         = errors.New("train-test split failed")
	ErrNormalization = errors.New("normalization failed")
	ErrTraining      = errors.New("training failed")
	ErrEvaluation    = errors.New("evaluation failed")

	// ErrSkipped is wrapped by the error of a stage that did not run
	// because a stage it depends on failed.
	ErrSkipped = errors.New("skipped: a required earlier stage failed")
)

// Stage names one step of the run.
type Stage string

const (
	StageDataLoad      Stage = "load_data"
	StageSplit         Stage = "split"
	StageNormalization Stage = "normalize"
	StageTraining      Stage = "train"
	StageEvaluation    Stage = "evaluate"
)

// Messages logged at the end of a run.
const (
	MsgSuccess          = "Program completed successfully with no errors."
	msgFailureFormat    = "Program completed with errors in %d stage(s)."
	MsgAccuracyTooLow   = "Accuracy is lower than expected."
	accuracyMsgTemplate = "Model accuracy: %.4f"
	stageTimeTemplate   = "Stage %s finished in %.3f ms"
)

// StageReport records the outcome of one stage.
type StageReport struct {
	Stage    Stage
	Err      error
	Duration time.Duration
}

// Skipped reports whether the stage never ran.
func (r StageReport) Skipped() bool {
	return errors.Is(r.Err, ErrSkipped)
}

// Result carries the value of every stage that succeeded.
type Result struct {
	Dataset *datasets.Bunch
	Split   *model_selection.Split
	Scaler  *preprocessing.StandardScaler
	// XTrain and XTest are the standardized feature matrices.
	XTrain, XTest mat.Matrix
	Model         *linear_model.LogisticRegression
	Evaluation    *Evaluation

	Reports []StageReport
}

// Err joins the errors of all failed stages. nil means every stage succeeded.
func (r *Result) Err() error {
	var errs []error
	for _, rep := range r.Reports {
		if rep.Err != nil {
			errs = append(errs, rep.Err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}

// Failed returns the number of stages that did not succeed, skipped ones included.
func (r *Result) Failed() int {
	n := 0
	for _, rep := range r.Reports {
		if rep.Err != nil {
			n++
		}
	}
	return n
}

// loadDataset is replaced in tests to simulate a broken resource.
var loadDataset = datasets.LoadIris

type runner struct {
	cfg    *config.Config
	logger log.Logger
	res    *Result
}

// Run executes the five stages in order and logs the final status line.
// The returned error is Result.Err(); the Result is never nil.
func Run(ctx context.Context, cfg *config.Config, logger log.Logger) (*Result, error) {
	if logger == nil {
		logger = log.GetLogger()
	}
	r := &runner{cfg: cfg, logger: logger, res: &Result{}}

	r.stage(ctx, StageDataLoad, ErrDataLoad,
		"Loading the Iris dataset...", "Failed to load the Iris dataset",
		true, r.loadData)
	r.stage(ctx, StageSplit, ErrSplit,
		"Splitting dataset...", "Error during train-test split",
		r.res.Dataset != nil, r.split)
	r.stage(ctx, StageNormalization, ErrNormalization,
		"Normalizing data with StandardScaler...", "Error while normalizing data",
		r.res.Split != nil, r.normalize)
	r.stage(ctx, StageTraining, ErrTraining,
		"Training Logistic Regression model...", "Error during model training",
		r.res.XTrain != nil, r.train)
	r.stage(ctx, StageEvaluation, ErrEvaluation,
		"Evaluating the model...", "Error during evaluation",
		r.res.Model != nil && r.res.XTest != nil, r.evaluate)

	err := r.res.Err()
	if err != nil {
		logger.Error(fmt.Sprintf(msgFailureFormat, r.res.Failed()))
		return r.res, err
	}
	logger.Info(MsgSuccess)
	return r.res, nil
}

// stage logs the transition line, runs body when its input is ready and
// records the outcome. Panics inside body become errors.
func (r *runner) stage(ctx context.Context, stage Stage, sentinel error, announce, failure string, ready bool, body func() error) {
	r.logger.Info(announce)
	start := time.Now()

	var err error
	switch {
	case ctx.Err() != nil:
		err = errors.Wrapf(ctx.Err(), "%s", stage)
	case !ready:
		err = errors.Wrapf(ErrSkipped, "%s", stage)
	default:
		err = errors.SafeExecute(string(stage), body)
	}

	if err != nil {
		err = errors.Mark(err, sentinel)
		r.logger.Error(failure, err,
			log.ErrorTypeKey, fmt.Sprintf("%T", errors.UnwrapAll(err)),
			log.StageKey, string(stage),
		)
	}
	elapsed := time.Since(start)
	ms := float64(elapsed.Microseconds()) / 1000
	r.logger.Debug(fmt.Sprintf(stageTimeTemplate, stage, ms),
		log.StageKey, string(stage),
		log.DurationMsKey, ms,
	)
	r.res.Reports = append(r.res.Reports, StageReport{
		Stage:    stage,
		Err:      err,
		Duration: elapsed,
	})
}

func (r *runner) loadData() error {
	bunch, err := loadDataset()
	if err != nil {
		return err
	}
	r.logger.Debug(fmt.Sprintf("Dataset shape: %s, Labels shape: (%d,)",
		shape(bunch.Data), bunch.Target.Len()),
		log.SamplesKey, bunch.NSamples(),
		log.FeaturesKey, bunch.NFeatures(),
		log.ClassesKey, len(bunch.TargetNames),
	)
	r.res.Dataset = bunch
	return nil
}

func (r *runner) split() error {
	s, err := model_selection.TrainTestSplit(r.res.Dataset.Data, r.res.Dataset.Target,
		model_selection.WithTestSize(r.cfg.TestSize),
		model_selection.WithRandomState(r.cfg.RandomState),
	)
	if err != nil {
		return err
	}
	r.logger.Debug(fmt.Sprintf("Training size: %s, Test size: %s", shape(s.XTrain), shape(s.XTest)),
		log.RandomSeedKey, r.cfg.RandomState,
		log.TestSizeKey, r.cfg.TestSize,
	)
	r.res.Split = s
	return nil
}

func (r *runner) normalize() error {
	scaler := preprocessing.NewStandardScalerDefault()
	XTrain, err := scaler.FitTransform(r.res.Split.XTrain)
	if err != nil {
		return err
	}
	// テストデータは訓練データの統計量で変換する
	XTest, err := scaler.Transform(r.res.Split.XTest)
	if err != nil {
		return err
	}
	r.logger.Debug("Normalization complete.")
	r.res.Scaler, r.res.XTrain, r.res.XTest = scaler, XTrain, XTest
	return nil
}

func (r *runner) train() error {
	clf := linear_model.NewLogisticRegression(
		linear_model.WithLRMaxIter(r.cfg.MaxIter),
		linear_model.WithLRC(r.cfg.C),
	)
	if err := clf.Fit(r.res.XTrain, r.res.Split.YTrain); err != nil {
		return err
	}
	r.logger.Info("Model training complete.",
		log.IterationKey, clf.NIter()[0],
		log.LossKey, clf.Loss(),
		log.HyperParamsKey, clf.GetParams(),
	)
	r.res.Model = clf
	return nil
}

func (r *runner) evaluate() error {
	eval, err := Evaluate(r.res.Model, r.res.XTest, r.res.Split.YTest, r.cfg.AccuracyThreshold)
	if err != nil {
		return err
	}
	r.logger.Info(fmt.Sprintf(accuracyMsgTemplate, eval.Accuracy), log.AccuracyKey, eval.Accuracy)
	if eval.BelowThreshold {
		r.logger.Warn(MsgAccuracyTooLow, log.ThresholdKey, eval.Threshold)
	}
	// 正解率を出してからクラス別の指標を計算する
	if err := eval.ComputePerClass(); err != nil {
		return err
	}
	r.res.Evaluation = eval
	return nil
}

// shape renders a matrix size as "(rows, cols)".
func shape(m mat.Matrix) string {
	rows, cols := m.Dims()
	return fmt.Sprintf("(%d, %d)", rows, cols)
}
