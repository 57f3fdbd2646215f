// Package irisml trains and evaluates a logistic regression classifier on the
// Iris dataset with a scikit-learn-like API in Go.
//
// The command in cmd/irisml runs the whole workflow once: load the bundled
// dataset, split it 80/20 with a fixed seed, standardize the features with
// statistics from the training rows, fit a multinomial logistic regression
// and report the test accuracy. Every step is logged to the console and to
// an append-mode log file.
//
// # Installation
//
//	go install github.com/YuminosukeSato/irisml/cmd/irisml@latest
//
// # Quick Start
//
// The library packages can be used directly:
//
//	iris, err := datasets.LoadIris()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	split, err := model_selection.TrainTestSplit(iris.Data, iris.Target,
//	    model_selection.WithTestSize(0.2),
//	    model_selection.WithRandomState(42),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	scaler := preprocessing.NewStandardScalerDefault()
//	XTrain, _ := scaler.FitTransform(split.XTrain)
//	XTest, _ := scaler.Transform(split.XTest)
//
//	clf := linear_model.NewLogisticRegression(linear_model.WithLRMaxIter(200))
//	if err := clf.Fit(XTrain, split.YTrain); err != nil {
//	    log.Fatal(err)
//	}
//	acc, _ := clf.Score(XTest, split.YTest)
//	fmt.Printf("accuracy: %.4f\n", acc)
//
// # Packages
//
//   - sklearn/datasets: bundled datasets (LoadIris)
//   - sklearn/model_selection: TrainTestSplit
//   - preprocessing: StandardScaler
//   - sklearn/linear_model: LogisticRegression (lbfgs, multinomial and OvR)
//   - metrics: Accuracy, ConfusionMatrix, per-class precision/recall/F1
//   - core/model: Core interfaces and fitted-state management
//   - core/parallel: Parallel processing utilities
//   - pkg/errors, pkg/log: typed errors, warnings and structured logging
//
// # Performance
//
// Row-wise transforms and predictions fan out across CPU cores for inputs
// with more than 1000 rows. Smaller inputs run inline.
package irisml
