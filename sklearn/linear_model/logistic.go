// Package linear_model は線形分類器を提供します。
package linear_model

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/YuminosukeSato/irisml/core/model"
	"github.com/YuminosukeSato/irisml/core/parallel"
	"github.com/YuminosukeSato/irisml/metrics"
	"github.com/YuminosukeSato/irisml/pkg/errors"
	"github.com/YuminosukeSato/irisml/pkg/log"
)

// LogisticRegression implements logistic regression for classification
// Compatible with scikit-learn's LogisticRegression
type LogisticRegression struct {
	state *model.StateManager // State management (composition)

	// Hyperparameters
	penalty      string  // Regularization: "l2", "none"
	C            float64 // Inverse regularization strength (1/alpha)
	fitIntercept bool    // Whether to fit intercept
	randomState  int64   // Random seed for the gradient descent initialization, -1 = unseeded
	solver       string  // Solver: "lbfgs"
	maxIter      int     // Maximum iterations
	multiClass   string  // Multi-class: "auto", "ovr", "multinomial"
	tol          float64 // Tolerance for stopping

	// Model parameters
	coef_      [][]float64 // Coefficients (n_classes x n_features or 1 x n_features for binary)
	intercept_ []float64   // Intercept terms
	classes_   []int       // Unique class labels
	nClasses_  int         // Number of classes
	nFeatures_ int         // Number of features
	nIter_     []int       // Actual iterations per fitted weight vector
	loss_      float64     // Final objective value

	rand *rand.Rand
}

var (
	_ model.Classifier      = (*LogisticRegression)(nil)
	_ model.ParameterSetter = (*LogisticRegression)(nil)
)

// LogisticRegressionOption is a functional option for LogisticRegression
type LogisticRegressionOption func(*LogisticRegression)

// NewLogisticRegression creates a new LogisticRegression classifier
//
// Example:
//
//	clf := linear_model.NewLogisticRegression(linear_model.WithLRMaxIter(200))
//	if err := clf.Fit(XTrain, yTrain); err != nil {
//	    return err
//	}
//	yPred, err := clf.Predict(XTest)
func NewLogisticRegression(opts ...LogisticRegressionOption) *LogisticRegression {
	lr := &LogisticRegression{
		state:        model.NewStateManager(),
		penalty:      "l2",
		C:            1.0,
		fitIntercept: true,
		randomState:  -1,
		solver:       "lbfgs",
		maxIter:      100,
		multiClass:   "auto",
		tol:          1e-4,
	}

	for _, opt := range opts {
		opt(lr)
	}
	lr.resetRand()
	return lr
}

func (lr *LogisticRegression) resetRand() {
	if lr.randomState >= 0 {
		seed := uint64(lr.randomState)
		lr.rand = rand.New(rand.NewPCG(seed, seed))
	} else {
		lr.rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
}

// Option functions

// WithLRPenalty sets the regularization type
func WithLRPenalty(penalty string) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.penalty = penalty
	}
}

// WithLRC sets the inverse regularization strength
func WithLRC(c float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.C = c
	}
}

// WithLogisticFitIntercept sets whether to fit intercept
func WithLogisticFitIntercept(fit bool) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.fitIntercept = fit
	}
}

// WithLRSolver sets the optimization solver
func WithLRSolver(solver string) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.solver = solver
	}
}

// WithLRMultiClass sets the multi-class strategy ("auto", "ovr", "multinomial")
func WithLRMultiClass(multiClass string) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.multiClass = multiClass
	}
}

// WithLRMaxIter sets the maximum number of iterations
func WithLRMaxIter(maxIter int) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.maxIter = maxIter
	}
}

// WithLRTol sets the tolerance for stopping criteria
func WithLRTol(tol float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.tol = tol
	}
}

// WithLRRandomState sets the random seed
func WithLRRandomState(seed int64) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.randomState = seed
	}
}

// validateParams checks the hyperparameters before fitting
func (lr *LogisticRegression) validateParams() error {
	switch {
	case !(lr.C > 0) || math.IsInf(lr.C, 1):
		return errors.NewValidationError("C", "must be a positive finite number", lr.C)
	case lr.maxIter < 1:
		return errors.NewValidationError("max_iter", "must be at least 1", lr.maxIter)
	case !(lr.tol > 0):
		return errors.NewValidationError("tol", "must be positive", lr.tol)
	case lr.penalty != "l2" && lr.penalty != "none":
		return errors.NewValidationError("penalty", "supported values are l2 and none", lr.penalty)
	case lr.solver != "lbfgs":
		return errors.NewValidationError("solver", "supported value is lbfgs", lr.solver)
	case !slices.Contains([]string{"auto", "ovr", "multinomial"}, lr.multiClass):
		return errors.NewValidationError("multi_class", "must be one of auto, ovr, multinomial", lr.multiClass)
	}
	return nil
}

// Fit trains the logistic regression model
func (lr *LogisticRegression) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "LogisticRegression.Fit")

	if err := lr.validateParams(); err != nil {
		return err
	}
	lr.state.Reset()

	nSamples, nFeatures := X.Dims()
	if nSamples == 0 || nFeatures == 0 {
		return errors.NewModelError("LogisticRegression.Fit", "empty data", errors.ErrEmptyData)
	}
	yRows, yCols := y.Dims()
	if nSamples != yRows {
		return errors.NewDimensionError("LogisticRegression.Fit", nSamples, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewDimensionError("LogisticRegression.Fit", 1, yCols, 1)
	}
	if err := errors.CheckMatrix("LogisticRegression.Fit", X, 0); err != nil {
		return err
	}

	labels := make([]int, nSamples)
	for i := range labels {
		labels[i] = int(y.At(i, 0))
	}
	lr.extractClasses(labels)
	if lr.nClasses_ < 2 {
		return errors.NewValueError("LogisticRegression.Fit",
			fmt.Sprintf("this solver needs samples of at least 2 classes in the data, but the data contains only one class: %v", lr.classes_))
	}
	lr.nFeatures_ = nFeatures
	lr.resetRand()

	Xd := mat.DenseCopyOf(X)
	classIdx := make([]int, nSamples)
	for i, label := range labels {
		classIdx[i] = slices.Index(lr.classes_, label)
	}

	switch {
	case lr.useMultinomial():
		err = lr.fitMultinomial(Xd, classIdx)
	case lr.nClasses_ == 2:
		err = lr.fitBinary(Xd, classIdx)
	default:
		err = lr.fitOVR(Xd, classIdx)
	}
	if err != nil {
		return err
	}

	for k := range lr.coef_ {
		if err := errors.CheckNumericalStability("LogisticRegression.Fit", lr.coef_[k], lo.Max(lr.nIter_)); err != nil {
			return err
		}
	}

	lr.state.SetFitted(nFeatures, nSamples)
	log.GetLoggerWithName("linear_model").Debug("LogisticRegression fitted",
		log.ModelNameKey, "LogisticRegression",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, nSamples,
		log.FeaturesKey, nFeatures,
		log.ClassesKey, lr.nClasses_,
		log.IterationKey, lo.Max(lr.nIter_),
		log.LossKey, lr.loss_,
	)
	return nil
}

// useMultinomial reports whether the softmax objective is fitted.
// "auto" selects it for more than two classes, like scikit-learn with lbfgs.
func (lr *LogisticRegression) useMultinomial() bool {
	switch lr.multiClass {
	case "multinomial":
		return true
	case "auto":
		return lr.nClasses_ > 2
	default:
		return false
	}
}

// extractClasses identifies unique class labels
func (lr *LogisticRegression) extractClasses(labels []int) {
	lr.classes_ = lo.Uniq(labels)
	slices.Sort(lr.classes_)
	lr.nClasses_ = len(lr.classes_)
}

// alpha はサンプル数で正規化したL2正則化の係数
// 目的関数: mean(loss) + ||w||² / (2·C·n)
func (lr *LogisticRegression) alpha(nSamples int) float64 {
	if lr.penalty == "none" {
		return 0
	}
	return 1.0 / (lr.C * float64(nSamples))
}

// fitMultinomial fits the softmax objective with L-BFGS.
// Parameter layout: K×d weights row-major, followed by K intercepts.
func (lr *LogisticRegression) fitMultinomial(X *mat.Dense, classIdx []int) error {
	n, d := X.Dims()
	K := lr.nClasses_
	nW := K * d
	dim := nW
	if lr.fitIntercept {
		dim += K
	}
	alpha := lr.alpha(n)

	Z := mat.NewDense(n, K, nil)
	R := mat.NewDense(n, K, nil)
	objective := func(x, grad []float64) float64 {
		W := mat.NewDense(K, d, x[:nW])
		Z.Mul(X, W.T())
		if lr.fitIntercept {
			for i := 0; i < n; i++ {
				floats.Add(Z.RawRowView(i), x[nW:])
			}
		}

		loss := 0.0
		for i := 0; i < n; i++ {
			row := Z.RawRowView(i)
			lse := floats.LogSumExp(row)
			loss += lse - row[classIdx[i]]
			if grad != nil {
				res := R.RawRowView(i)
				for k := range row {
					res[k] = math.Exp(row[k] - lse)
				}
				res[classIdx[i]] -= 1
			}
		}
		loss /= float64(n)
		loss += 0.5 * alpha * floats.Dot(x[:nW], x[:nW])

		if grad != nil {
			G := mat.NewDense(K, d, grad[:nW])
			G.Mul(R.T(), X)
			G.Scale(1/float64(n), G)
			floats.AddScaled(grad[:nW], alpha, x[:nW])
			if lr.fitIntercept {
				for k := 0; k < K; k++ {
					grad[nW+k] = floats.Sum(mat.Col(nil, k, R)) / float64(n)
				}
			}
		}
		return loss
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 { return objective(x, nil) },
		Grad: func(grad, x []float64) { objective(x, grad) },
	}
	settings := &optimize.Settings{
		MajorIterations:   lr.maxIter,
		GradientThreshold: lr.tol,
	}

	result, err := optimize.Minimize(problem, make([]float64, dim), settings, &optimize.LBFGS{})
	if err != nil {
		// 直線探索が進めなくなった場合も最良点は使える
		if result == nil || !(errors.Is(err, optimize.ErrLinesearcherFailure) || errors.Is(err, optimize.ErrNoProgress)) {
			return errors.NewModelError("LogisticRegression.Fit", "lbfgs failed", err)
		}
		errors.Warn(errors.NewConvergenceWarning("lbfgs", result.MajorIterations, err.Error()))
	} else if result.Status == optimize.IterationLimit {
		errors.Warn(errors.NewConvergenceWarning("lbfgs", result.MajorIterations,
			"Increase the number of iterations (max_iter) or scale the data"))
	}

	lr.coef_ = make([][]float64, K)
	for k := 0; k < K; k++ {
		lr.coef_[k] = append([]float64(nil), result.X[k*d:(k+1)*d]...)
	}
	lr.intercept_ = make([]float64, K)
	if lr.fitIntercept {
		copy(lr.intercept_, result.X[nW:])
	}
	lr.nIter_ = []int{result.MajorIterations}
	lr.loss_ = result.F
	return nil
}

// fitBinary fits a single weight vector for classes_[1] against classes_[0]
func (lr *LogisticRegression) fitBinary(X *mat.Dense, classIdx []int) error {
	_, nFeatures := X.Dims()
	lr.coef_ = [][]float64{lr.initialWeights(nFeatures)}
	lr.intercept_ = make([]float64, 1)
	lr.nIter_ = make([]int, 1)

	target := lo.Map(classIdx, func(c int, _ int) float64 {
		if c == 1 {
			return 1.0
		}
		return 0.0
	})
	lr.gradientDescent(X, target, 0)
	return nil
}

// fitOVR fits one-vs-rest multiclass classification
func (lr *LogisticRegression) fitOVR(X *mat.Dense, classIdx []int) error {
	_, nFeatures := X.Dims()
	lr.coef_ = make([][]float64, lr.nClasses_)
	lr.intercept_ = make([]float64, lr.nClasses_)
	lr.nIter_ = make([]int, lr.nClasses_)

	for k := range lr.classes_ {
		lr.coef_[k] = lr.initialWeights(nFeatures)
		target := lo.Map(classIdx, func(c int, _ int) float64 {
			if c == k {
				return 1.0
			}
			return 0.0
		})
		lr.gradientDescent(X, target, k)
	}
	return nil
}

// initialWeights returns small random starting weights
func (lr *LogisticRegression) initialWeights(nFeatures int) []float64 {
	w := make([]float64, nFeatures)
	for j := range w {
		w[j] = lr.rand.NormFloat64() * 0.01
	}
	return w
}

// gradientDescent fits coef_[k] / intercept_[k] on 0/1 targets with a
// decaying learning rate. A ConvergenceWarning is raised when the max
// absolute gradient is still above tol after maxIter iterations.
func (lr *LogisticRegression) gradientDescent(X *mat.Dense, target []float64, k int) {
	nSamples, nFeatures := X.Dims()
	weights := lr.coef_[k]
	intercept := &lr.intercept_[k]
	alpha := lr.alpha(nSamples)

	baseLearningRate := 1.0
	gradWeights := make([]float64, nFeatures)
	converged := false

	for iter := 0; iter < lr.maxIter; iter++ {
		for j := range gradWeights {
			gradWeights[j] = 0
		}
		gradIntercept := 0.0
		loss := 0.0

		for i := 0; i < nSamples; i++ {
			row := X.RawRowView(i)
			p := sigmoid(*intercept + floats.Dot(row, weights))
			diff := p - target[i]
			gradIntercept += diff
			floats.AddScaled(gradWeights, diff, row)
			loss += logLoss(p, target[i])
		}

		floats.Scale(1/float64(nSamples), gradWeights)
		gradIntercept /= float64(nSamples)
		floats.AddScaled(gradWeights, alpha, weights)

		learningRate := baseLearningRate / (1.0 + 0.1*float64(iter))
		floats.AddScaled(weights, -learningRate, gradWeights)
		if lr.fitIntercept {
			*intercept -= learningRate * gradIntercept
		}

		lr.nIter_[k] = iter + 1
		lr.loss_ = loss/float64(nSamples) + 0.5*alpha*floats.Dot(weights, weights)

		maxGrad := math.Max(math.Abs(gradIntercept), floats.Norm(gradWeights, math.Inf(1)))
		if maxGrad < lr.tol {
			converged = true
			break
		}
	}

	if !converged {
		errors.Warn(errors.NewConvergenceWarning("gradient descent", lr.maxIter,
			fmt.Sprintf("class %d did not reach tol=%g", lr.classes_[k], lr.tol)))
	}
}

// requireFitted checks the fitted state and the feature count of X
func (lr *LogisticRegression) requireFitted(method string, X mat.Matrix) error {
	if err := lr.state.RequireFitted("LogisticRegression", method); err != nil {
		return err
	}
	_, c := X.Dims()
	return lr.state.RequireFeatures("LogisticRegression."+method, c)
}

// decision computes the raw scores (n × len(coef_))
func (lr *LogisticRegression) decision(X mat.Matrix) *mat.Dense {
	nSamples, _ := X.Dims()
	nOut := len(lr.coef_)
	scores := mat.NewDense(nSamples, nOut, nil)
	parallel.ParallelizeWithThreshold(nSamples, parallel.DefaultThreshold, func(start, end int) {
		row := make([]float64, lr.nFeatures_)
		for i := start; i < end; i++ {
			for j := range row {
				row[j] = X.At(i, j)
			}
			for k := 0; k < nOut; k++ {
				scores.Set(i, k, lr.intercept_[k]+floats.Dot(row, lr.coef_[k]))
			}
		}
	})
	return scores
}

// DecisionFunction returns the signed distance to the hyperplane for binary
// problems (n × 1) and the per-class scores otherwise (n × n_classes)
func (lr *LogisticRegression) DecisionFunction(X mat.Matrix) (mat.Matrix, error) {
	if err := lr.requireFitted("DecisionFunction", X); err != nil {
		return nil, err
	}
	return lr.decision(X), nil
}

// Predict makes predictions for input data (n × 1)
func (lr *LogisticRegression) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := lr.requireFitted("Predict", X); err != nil {
		return nil, err
	}

	scores := lr.decision(X)
	nSamples, nOut := scores.Dims()
	predictions := mat.NewVecDense(nSamples, nil)
	for i := 0; i < nSamples; i++ {
		if nOut == 1 {
			// sigmoid(z) >= 0.5 ⇔ z >= 0
			if scores.At(i, 0) >= 0 {
				predictions.SetVec(i, float64(lr.classes_[1]))
			} else {
				predictions.SetVec(i, float64(lr.classes_[0]))
			}
			continue
		}
		predictions.SetVec(i, float64(lr.classes_[floats.MaxIdx(scores.RawRowView(i))]))
	}
	log.GetLoggerWithName("linear_model").Debug("LogisticRegression predicted",
		log.ModelNameKey, "LogisticRegression",
		log.OperationKey, log.OperationPredict,
		log.SamplesKey, nSamples,
	)
	return predictions, nil
}

// PredictProba returns probability estimates for each class (n × n_classes)
func (lr *LogisticRegression) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := lr.requireFitted("PredictProba", X); err != nil {
		return nil, err
	}

	scores := lr.decision(X)
	nSamples, nOut := scores.Dims()
	probas := mat.NewDense(nSamples, lr.nClasses_, nil)
	for i := 0; i < nSamples; i++ {
		row := scores.RawRowView(i)
		switch {
		case nOut == 1:
			p1 := sigmoid(row[0])
			probas.Set(i, 0, 1.0-p1)
			probas.Set(i, 1, p1)
		case lr.useMultinomial():
			probas.SetRow(i, softmax(row))
		default:
			// OvR: 各クラスのsigmoidを正規化する
			p := lo.Map(row, func(z float64, _ int) float64 { return sigmoid(z) })
			floats.Scale(1/floats.Sum(p), p)
			probas.SetRow(i, p)
		}
	}
	return probas, nil
}

// Score returns the mean accuracy on the given test data and labels
func (lr *LogisticRegression) Score(X, y mat.Matrix) (float64, error) {
	predictions, err := lr.Predict(X)
	if err != nil {
		return 0, err
	}
	acc, err := metrics.AccuracyMatrix(y, predictions)
	if err != nil {
		return 0, err
	}
	log.GetLoggerWithName("linear_model").Debug("LogisticRegression scored",
		log.ModelNameKey, "LogisticRegression",
		log.OperationKey, log.OperationScore,
		log.AccuracyKey, acc,
	)
	return acc, nil
}

// IsFitted reports whether Fit has completed successfully
func (lr *LogisticRegression) IsFitted() bool {
	return lr.state.IsFitted()
}

// Coef returns a copy of the learned coefficients
func (lr *LogisticRegression) Coef() [][]float64 {
	return lo.Map(lr.coef_, func(w []float64, _ int) []float64 { return slices.Clone(w) })
}

// Intercept returns a copy of the learned intercepts
func (lr *LogisticRegression) Intercept() []float64 {
	return slices.Clone(lr.intercept_)
}

// Classes returns the sorted class labels seen during Fit
func (lr *LogisticRegression) Classes() []int {
	return slices.Clone(lr.classes_)
}

// NIter returns the number of iterations run for each fitted weight vector
func (lr *LogisticRegression) NIter() []int {
	return slices.Clone(lr.nIter_)
}

// Loss returns the final value of the training objective
func (lr *LogisticRegression) Loss() float64 {
	return lr.loss_
}

// GetParams returns the model hyperparameters
func (lr *LogisticRegression) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"penalty":       lr.penalty,
		"C":             lr.C,
		"fit_intercept": lr.fitIntercept,
		"random_state":  lr.randomState,
		"solver":        lr.solver,
		"max_iter":      lr.maxIter,
		"multi_class":   lr.multiClass,
		"tol":           lr.tol,
	}
}

// SetParams sets the model hyperparameters
func (lr *LogisticRegression) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		ok := true
		switch key {
		case "penalty":
			lr.penalty, ok = value.(string)
		case "C":
			lr.C, ok = value.(float64)
		case "fit_intercept":
			lr.fitIntercept, ok = value.(bool)
		case "random_state":
			lr.randomState, ok = value.(int64)
		case "solver":
			lr.solver, ok = value.(string)
		case "max_iter":
			lr.maxIter, ok = value.(int)
		case "multi_class":
			lr.multiClass, ok = value.(string)
		case "tol":
			lr.tol, ok = value.(float64)
		default:
			return errors.NewValidationError(key, "unknown parameter", value)
		}
		if !ok {
			return errors.NewValidationError(key, fmt.Sprintf("unexpected type %T", value), value)
		}
	}
	return nil
}

// sigmoid computes the sigmoid function
func sigmoid(z float64) float64 {
	return 1.0 / (1.0 + math.Exp(-z))
}

// softmax returns exp(z - logsumexp(z))
func softmax(z []float64) []float64 {
	lse := floats.LogSumExp(z)
	return lo.Map(z, func(v float64, _ int) float64 { return math.Exp(v - lse) })
}

func logLoss(p, target float64) float64 {
	const eps = 1e-15
	p = math.Min(math.Max(p, eps), 1-eps)
	return -(target*math.Log(p) + (1-target)*math.Log(1-p))
}
