package pipeline

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/irisml/internal/config"
	"github.com/YuminosukeSato/irisml/pkg/errors"
	"github.com/YuminosukeSato/irisml/pkg/log"
	"github.com/YuminosukeSato/irisml/sklearn/datasets"
)

var transitions = []string{
	"Loading the Iris dataset...",
	"Splitting dataset...",
	"Normalizing data with StandardScaler...",
	"Training Logistic Regression model...",
	"Evaluating the model...",
}

func defaultConfig() *config.Config {
	cfg := config.Default()
	return &cfg
}

// silenceWarnings keeps library warnings out of the test output
func silenceWarnings(t *testing.T) {
	t.Helper()
	errors.SetWarningHandler(func(error) {})
	t.Cleanup(func() { errors.SetWarningHandler(nil) })
}

func TestRunEndToEnd(t *testing.T) {
	silenceWarnings(t)
	logger, _ := log.NewTestLogger(log.LevelDebug)

	res, err := Run(context.Background(), defaultConfig(), logger)
	require.NoError(t, err)
	require.NotNil(t, res)

	require.Len(t, res.Reports, 5)
	for _, rep := range res.Reports {
		assert.NoError(t, rep.Err, "stage %s", rep.Stage)
		assert.False(t, rep.Skipped())
	}
	assert.Equal(t, 0, res.Failed())

	assert.Equal(t, 150, res.Dataset.NSamples())
	assert.Equal(t, 4, res.Dataset.NFeatures())

	trainRows, _ := res.Split.XTrain.Dims()
	testRows, _ := res.Split.XTest.Dims()
	assert.Equal(t, 120, trainRows)
	assert.Equal(t, 30, testRows)

	require.NotNil(t, res.Evaluation)
	assert.GreaterOrEqual(t, res.Evaluation.Accuracy, 0.9)
	assert.LessOrEqual(t, res.Evaluation.Accuracy, 1.0)
	assert.False(t, res.Evaluation.BelowThreshold)
	assert.Equal(t, 30.0, mat.Sum(res.Evaluation.Confusion))

	info := logger.Messages(log.LevelInfo)
	for _, msg := range transitions {
		assert.Contains(t, info, msg)
	}
	assert.Contains(t, info, "Model training complete.")
	assert.Regexp(t, `^Model accuracy: \d\.\d{4}$`, info[len(info)-2])
	assert.Equal(t, MsgSuccess, info[len(info)-1])
	assert.Empty(t, logger.Messages(log.LevelWarn))
	assert.Empty(t, logger.Messages(log.LevelError))

	debug := logger.Messages(log.LevelDebug)
	assert.Contains(t, debug, "Dataset shape: (150, 4), Labels shape: (150,)")
	assert.Contains(t, debug, "Training size: (120, 4), Test size: (30, 4)")
	assert.Contains(t, debug, "Normalization complete.")

	require.Len(t, res.Evaluation.PerClass, 3)
	support := 0
	for _, rep := range res.Evaluation.PerClass {
		support += rep.Support
	}
	assert.Equal(t, 30, support)
}

func TestRunLogsStageDurationsAndHyperparams(t *testing.T) {
	silenceWarnings(t)
	logger, _ := log.NewTestLogger(log.LevelDebug)

	res, err := Run(context.Background(), defaultConfig(), logger)
	require.NoError(t, err)

	entries, err := logger.GetLogEntries()
	require.NoError(t, err)

	timed := map[string]bool{}
	var params map[string]interface{}
	for _, e := range entries {
		if ms, ok := e[log.DurationMsKey].(float64); ok {
			assert.GreaterOrEqual(t, ms, 0.0)
			timed[e[log.StageKey].(string)] = true
		}
		if e["message"] == "Model training complete." {
			params, _ = e[log.HyperParamsKey].(map[string]interface{})
		}
	}
	for _, rep := range res.Reports {
		assert.True(t, timed[string(rep.Stage)], "no duration for stage %s", rep.Stage)
	}

	require.NotNil(t, params, "training line carries no hyperparameters")
	assert.Equal(t, 200.0, params["max_iter"])
	assert.Equal(t, 1.0, params["C"])

	// 終了行は常に最後
	assert.Equal(t, MsgSuccess, entries[len(entries)-1]["message"])
}

func TestRunLogsPerClassWarningsAfterAccuracy(t *testing.T) {
	// クラス2は setosa 内の5点だけなので、強い正則化のモデルは一度も予測しない
	orig := loadDataset
	t.Cleanup(func() { loadDataset = orig })
	loadDataset = func() (*datasets.Bunch, error) {
		bunch, err := datasets.LoadIris()
		if err != nil {
			return nil, err
		}
		for i := 0; i < bunch.Target.Len(); i++ {
			switch {
			case i < 50 && i%12 == 0:
				bunch.Target.SetVec(i, 2)
			case i >= 100:
				bunch.Target.SetVec(i, 1)
			}
		}
		return bunch, nil
	}

	logger, _ := log.NewTestLogger(log.LevelDebug)
	log.SetDefault(logger)
	defer log.SetDefault(nil)

	cfg := defaultConfig()
	cfg.C = 1e-4
	cfg.AccuracyThreshold = 0

	res, err := Run(context.Background(), cfg, logger)
	require.NoError(t, err)
	require.NotNil(t, res.Evaluation.PerClass)

	entries, err := logger.GetLogEntries()
	require.NoError(t, err)
	accuracyAt := -1
	var metricWarnings []int
	label2 := false
	for i, e := range entries {
		msg, _ := e["message"].(string)
		if strings.HasPrefix(msg, "Model accuracy: ") {
			accuracyAt = i
		}
		if strings.Contains(msg, "is ill-defined") {
			metricWarnings = append(metricWarnings, i)
			label2 = label2 || strings.Contains(msg, "for label 2")
		}
	}
	require.GreaterOrEqual(t, accuracyAt, 0)
	require.NotEmpty(t, metricWarnings, "expected an undefined metric warning")
	assert.True(t, label2, "no warning names label 2")
	for _, i := range metricWarnings {
		assert.Greater(t, i, accuracyAt)
	}
}

func TestRunNormalizesWithTrainingStatistics(t *testing.T) {
	silenceWarnings(t)
	logger, _ := log.NewTestLogger(log.LevelInfo)

	res, err := Run(context.Background(), defaultConfig(), logger)
	require.NoError(t, err)

	_, cols := res.XTrain.Dims()
	for j := 0; j < cols; j++ {
		mean, std := stat.PopMeanStdDev(mat.Col(nil, j, res.XTrain), nil)
		assert.InDelta(t, 0, mean, 1e-9, "column %d mean", j)
		assert.InDelta(t, 1, std, 1e-9, "column %d std", j)
	}

	// テストデータは訓練データの平均・標準偏差で変換されている
	rawTest := res.Split.XTest
	for j := 0; j < cols; j++ {
		want := (rawTest.At(0, j) - res.Scaler.Mean[j]) / res.Scaler.Scale[j]
		assert.InDelta(t, want, res.XTest.At(0, j), 1e-12)
	}
}

func TestRunIsDeterministic(t *testing.T) {
	silenceWarnings(t)
	logger, _ := log.NewTestLogger(log.LevelError)

	first, err := Run(context.Background(), defaultConfig(), logger)
	require.NoError(t, err)
	second, err := Run(context.Background(), defaultConfig(), logger)
	require.NoError(t, err)

	assert.Equal(t, first.Split.TestIndices, second.Split.TestIndices)
	assert.Equal(t, first.Split.TrainIndices, second.Split.TrainIndices)
	assert.Equal(t, first.Evaluation.Accuracy, second.Evaluation.Accuracy)

	seen := make(map[int]bool)
	for _, i := range first.Split.TrainIndices {
		seen[i] = true
	}
	for _, i := range first.Split.TestIndices {
		assert.False(t, seen[i], "index %d in both subsets", i)
	}
}

func TestRunAccuracyWarning(t *testing.T) {
	silenceWarnings(t)
	logger, _ := log.NewTestLogger(log.LevelDebug)

	cfg := defaultConfig()
	// 正解率は1を超えないので必ず警告になる
	cfg.AccuracyThreshold = 1.01

	res, err := Run(context.Background(), cfg, logger)
	require.NoError(t, err, "a low accuracy is not a stage failure")
	assert.True(t, res.Evaluation.BelowThreshold)
	assert.Equal(t, []string{MsgAccuracyTooLow}, logger.Messages(log.LevelWarn))
	assert.True(t, logger.ContainsField(log.ThresholdKey, 1.01))

	info := logger.Messages(log.LevelInfo)
	assert.Equal(t, MsgSuccess, info[len(info)-1])
}

func TestRunSplitFailureSkipsLaterStages(t *testing.T) {
	logger, _ := log.NewTestLogger(log.LevelDebug)

	cfg := defaultConfig()
	cfg.TestSize = 1.5

	res, err := Run(context.Background(), cfg, logger)
	require.Error(t, err)

	assert.True(t, errors.Is(err, ErrSplit))
	assert.True(t, errors.Is(err, ErrNormalization))
	assert.False(t, errors.Is(err, ErrDataLoad))

	require.Len(t, res.Reports, 5)
	assert.NoError(t, res.Reports[0].Err)

	var valErr *errors.ValidationError
	assert.True(t, errors.As(res.Reports[1].Err, &valErr))
	assert.False(t, res.Reports[1].Skipped())

	sentinels := []error{ErrNormalization, ErrTraining, ErrEvaluation}
	for i, rep := range res.Reports[2:] {
		assert.True(t, rep.Skipped(), "stage %s", rep.Stage)
		assert.True(t, errors.Is(rep.Err, sentinels[i]), "stage %s", rep.Stage)
	}
	assert.Equal(t, 4, res.Failed())
	assert.Nil(t, res.Model)
	assert.Nil(t, res.Evaluation)

	// 失敗しても各段階の開始ログは必ず出る
	info := logger.Messages(log.LevelInfo)
	for _, msg := range transitions {
		assert.Contains(t, info, msg)
	}
	assert.NotContains(t, info, MsgSuccess)

	errs := logger.Messages(log.LevelError)
	require.Len(t, errs, 5)
	assert.Equal(t, "Error during train-test split", errs[0])
	assert.Equal(t, "Program completed with errors in 4 stage(s).", errs[4])
	assert.True(t, logger.ContainsField(log.StageKey, string(StageSplit)))
	assert.True(t, logger.ContainsField(log.ErrorTypeKey, "*errors.ValidationError"))
}

func TestRunDataLoadFailure(t *testing.T) {
	orig := loadDataset
	t.Cleanup(func() { loadDataset = orig })
	loadDataset = func() (*datasets.Bunch, error) {
		return nil, errors.NewValueError("LoadIris", "resource unavailable")
	}

	logger, _ := log.NewTestLogger(log.LevelDebug)
	res, err := Run(context.Background(), defaultConfig(), logger)
	require.Error(t, err)

	assert.True(t, errors.Is(res.Reports[0].Err, ErrDataLoad))
	assert.False(t, res.Reports[0].Skipped())
	for _, rep := range res.Reports[1:] {
		assert.True(t, rep.Skipped(), "stage %s", rep.Stage)
	}
	assert.Equal(t, 5, res.Failed())

	errs := logger.Messages(log.LevelError)
	assert.Equal(t, "Failed to load the Iris dataset", errs[0])
	assert.Equal(t, "Program completed with errors in 5 stage(s).", errs[len(errs)-1])
}

func TestRunRecoversPanics(t *testing.T) {
	orig := loadDataset
	t.Cleanup(func() { loadDataset = orig })
	loadDataset = func() (*datasets.Bunch, error) {
		panic("corrupt resource")
	}

	logger, _ := log.NewTestLogger(log.LevelDebug)
	res, err := Run(context.Background(), defaultConfig(), logger)
	require.Error(t, err)

	var panicErr *errors.PanicError
	require.True(t, errors.As(res.Reports[0].Err, &panicErr))
	assert.Equal(t, "corrupt resource", panicErr.PanicValue)
	assert.True(t, errors.Is(res.Reports[0].Err, ErrDataLoad))
}

func TestRunCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	logger, _ := log.NewTestLogger(log.LevelDebug)
	res, err := Run(ctx, defaultConfig(), logger)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 5, res.Failed())
	assert.Nil(t, res.Dataset)
}

func TestRunWritesBothSinks(t *testing.T) {
	silenceWarnings(t)
	path := filepath.Join(t.TempDir(), "iris_app.log")
	var console bytes.Buffer

	logger, err := log.New(log.Config{Level: "debug", FilePath: path, Console: &console})
	require.NoError(t, err)
	_, err = Run(context.Background(), defaultConfig(), logger)
	require.NoError(t, err)
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, console.String(), string(data))

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	line := regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2},\d{3} - iris_ml_app - (DEBUG|INFO|WARNING|ERROR) - `)
	for _, l := range lines {
		assert.Regexp(t, line, l)
	}
	for _, msg := range transitions {
		assert.Contains(t, string(data), " - INFO - "+msg)
	}
	assert.True(t, strings.HasSuffix(lines[len(lines)-1], " - INFO - "+MsgSuccess))

	// 構造化フィールドはテキストには出さない
	assert.Regexp(t, regexp.MustCompile(`(?m) - INFO - Model accuracy: \d\.\d{4}$`), string(data))
	assert.Regexp(t, regexp.MustCompile(`(?m) - INFO - Model training complete\.$`), string(data))
	assert.NotContains(t, string(data), log.StageKey+"=")
	assert.NotContains(t, string(data), log.DurationMsKey+"=")
}
