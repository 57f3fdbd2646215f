// Package log defines standard attribute keys for machine learning operations.
//
// Using these keys keeps structured fields consistent between the library
// packages and the pipeline, so log lines can be filtered by the same names
// ("data.samples", "metrics.accuracy", ...) whichever component wrote them.

package log

// Model and Operation Context
const (
	// ModelNameKey identifies the type of machine learning model.
	// Examples: "LogisticRegression", "StandardScaler"
	ModelNameKey = "model.name"

	// OperationKey specifies the machine learning operation being performed.
	// Standard values: "fit", "predict", "transform", "fit_transform", "score", "inverse_transform"
	OperationKey = "ml.operation"

	// ComponentKey identifies which component or package is performing the operation.
	ComponentKey = "ml.component"

	// StageKey names the pipeline stage that produced the record.
	StageKey = "pipeline.stage"
)

// Data Shape and Characteristics
const (
	// SamplesKey indicates the number of samples (rows) in the dataset.
	SamplesKey = "data.samples"

	// FeaturesKey indicates the number of features (columns) in the dataset.
	FeaturesKey = "data.features"

	// ClassesKey indicates the number of distinct target classes.
	ClassesKey = "data.classes"
)

// Performance Metrics
const (
	// DurationMsKey records the execution time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"

	// AccuracyKey records model accuracy for evaluation operations.
	// Range [0.0, 1.0].
	AccuracyKey = "metrics.accuracy"

	// LossKey records the objective value at the end of training.
	LossKey = "metrics.loss"

	// IterationKey records the number of optimizer iterations performed.
	IterationKey = "training.iteration"
)

// Prediction Context
const (
	// ThresholdKey records the accuracy threshold below which a warning is logged.
	ThresholdKey = "preds.threshold"
)

// Error and Warning Context
const (
	// ErrorTypeKey categorizes the type of error encountered.
	ErrorTypeKey = "error.type"

	// WarningKey carries a library warning (ConvergenceWarning, ...).
	WarningKey = "warning"
)

// Hyperparameters and Configuration
const (
	// HyperParamsKey contains model hyperparameters as a structured object.
	HyperParamsKey = "model.hyperparams"

	// RandomSeedKey records the random seed for reproducibility.
	RandomSeedKey = "config.random_seed"

	// TestSizeKey records the fraction of samples held out for testing.
	TestSizeKey = "config.test_size"
)

// Standard attribute value constants for common operations.
const (
	OperationFit          = "fit"
	OperationPredict      = "predict"
	OperationTransform    = "transform"
	OperationFitTransform = "fit_transform"
	OperationScore        = "score"

	OperationInverseTransform = "inverse_transform"
)
