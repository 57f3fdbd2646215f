package log

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/YuminosukeSato/irisml/pkg/errors"
)

var lineRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2},\d{3} - iris_ml_app - (DEBUG|INFO|WARNING|ERROR) - (.*)$`)

func splitLines(s string) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func newTestZerolog(t *testing.T, level string) (*ZerologLogger, *bytes.Buffer, string) {
	t.Helper()
	console := &bytes.Buffer{}
	path := filepath.Join(t.TempDir(), "iris_app.log")
	logger, err := New(Config{Name: DefaultName, Level: level, FilePath: path, Console: console})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return logger, console, path
}

func TestZerologLogger_LineFormat(t *testing.T) {
	logger, console, path := newTestZerolog(t, "debug")

	logger.Info("Loading the Iris dataset...")
	logger.Debug("Dataset shape: (150, 4), Labels shape: (150,)")
	logger.Warn("Accuracy is lower than expected.")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	want := []struct{ level, msg string }{
		{"INFO", "Loading the Iris dataset..."},
		{"DEBUG", "Dataset shape: (150, 4), Labels shape: (150,)"},
		{"WARNING", "Accuracy is lower than expected."},
	}

	fileData, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for name, out := range map[string]string{"console": console.String(), "file": string(fileData)} {
		lines := splitLines(out)
		if len(lines) != len(want) {
			t.Fatalf("%s: got %d lines, want %d:\n%s", name, len(lines), len(want), out)
		}
		for i, line := range lines {
			m := lineRe.FindStringSubmatch(line)
			if m == nil {
				t.Fatalf("%s: line %d does not match format: %q", name, i, line)
			}
			if m[1] != want[i].level || m[2] != want[i].msg {
				t.Errorf("%s: line %d = (%s, %q), want (%s, %q)", name, i, m[1], m[2], want[i].level, want[i].msg)
			}
		}
	}
}

func TestZerologLogger_AppendsAcrossRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "iris_app.log")

	for _, msg := range []string{"first run", "second run"} {
		logger, err := New(Config{Level: "info", FilePath: path, Console: &bytes.Buffer{}})
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		logger.Info(msg)
		if err := logger.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := splitLines(string(data))
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines after two runs, got %d:\n%s", len(lines), data)
	}
	if !strings.HasSuffix(lines[0], "INFO - first run") || !strings.HasSuffix(lines[1], "INFO - second run") {
		t.Errorf("unexpected file content:\n%s", data)
	}
}

func TestZerologLogger_LevelFilter(t *testing.T) {
	logger, console, _ := newTestZerolog(t, "info")
	defer logger.Close()

	logger.Debug("hidden")
	logger.Info("shown")

	if strings.Contains(console.String(), "hidden") {
		t.Error("debug record should be filtered at info level")
	}
	if !strings.Contains(console.String(), "INFO - shown") {
		t.Errorf("info record missing: %q", console.String())
	}
	if logger.Enabled(context.Background(), LevelDebug) {
		t.Error("Enabled(Debug) should be false at info level")
	}
	if !logger.Enabled(context.Background(), LevelWarn) {
		t.Error("Enabled(Warn) should be true at info level")
	}
}

func TestZerologLogger_ErrorWithStack(t *testing.T) {
	logger, console, _ := newTestZerolog(t, "debug")
	defer logger.Close()

	logger.Error("Error during train-test split: boom", errors.New("boom"),
		ErrorTypeKey, "*errors.errorString", StageKey, "split")

	lines := splitLines(console.String())
	if len(lines) != 1 {
		t.Fatalf("error record should stay on one line, got %d:\n%s", len(lines), console.String())
	}
	line := lines[0]
	if !strings.Contains(line, " - ERROR - Error during train-test split: boom") {
		t.Errorf("unexpected line: %q", line)
	}
	for _, want := range []string{"error=boom", StacktraceAttrKey + "=", ErrorTypeKey + "=*errors.errorString"} {
		if !strings.Contains(line, want) {
			t.Errorf("line missing %q: %q", want, line)
		}
	}
	if strings.Contains(line, StageKey+"=") {
		t.Errorf("%s should not be rendered on the text sinks: %q", StageKey, line)
	}
}

func TestZerologLogger_With(t *testing.T) {
	logger, console, _ := newTestZerolog(t, "debug")
	defer logger.Close()

	logger.With(ComponentKey, "linear_model", "run", 7).Info("fitted")

	if !strings.Contains(console.String(), "INFO - fitted run=7") {
		t.Errorf("context field missing: %q", console.String())
	}
	if strings.Contains(console.String(), ComponentKey) {
		t.Errorf("%s should not be rendered on the text sinks: %q", ComponentKey, console.String())
	}
}

func TestZerologLogger_AttributeFieldsEndAtMessage(t *testing.T) {
	logger, console, _ := newTestZerolog(t, "debug")
	defer logger.Close()

	logger.Info("Model accuracy: 0.9000", AccuracyKey, 0.9, StageKey, "evaluate")
	logger.Debug("Stage split finished in 0.125 ms", StageKey, "split", DurationMsKey, 0.125)
	logger.Info("Model training complete.",
		HyperParamsKey, map[string]interface{}{"C": 1.0}, LossKey, 0.1, IterationKey, 12)

	lines := splitLines(console.String())
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3:\n%s", len(lines), console.String())
	}
	for i, suffix := range []string{
		" - INFO - Model accuracy: 0.9000",
		" - DEBUG - Stage split finished in 0.125 ms",
		" - INFO - Model training complete.",
	} {
		if !strings.HasSuffix(lines[i], suffix) {
			t.Errorf("line %d = %q, want suffix %q", i, lines[i], suffix)
		}
	}
}

func TestNew_LeavesTimeFieldFormat(t *testing.T) {
	orig := zerolog.TimeFieldFormat
	defer func() { zerolog.TimeFieldFormat = orig }()

	zerolog.TimeFieldFormat = time.RFC1123
	logger, err := New(Config{Level: "info", Console: &bytes.Buffer{}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer logger.Close()

	if zerolog.TimeFieldFormat != time.RFC1123 {
		t.Errorf("New changed zerolog.TimeFieldFormat to %q", zerolog.TimeFieldFormat)
	}
	if orig != time.RFC3339Nano {
		t.Errorf("package init set TimeFieldFormat = %q, want RFC3339Nano", orig)
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	if _, err := New(Config{Level: "verbose"}); err == nil {
		t.Error("expected error for unknown level")
	}

	missingDir := filepath.Join(t.TempDir(), "missing", "iris_app.log")
	if _, err := New(Config{Level: "info", FilePath: missingDir}); err == nil {
		t.Error("expected error for unwritable log path")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
}

func TestSetDefault_RoutesWarnings(t *testing.T) {
	testLogger, _ := NewTestLogger(LevelDebug)
	SetDefault(testLogger)
	defer SetDefault(nil)

	errors.Warn(errors.NewConvergenceWarning("lbfgs", 200, ""))

	warns := testLogger.Messages(LevelWarn)
	if len(warns) != 1 || !strings.Contains(warns[0], "lbfgs failed to converge") {
		t.Errorf("warning not routed to default logger: %v", warns)
	}

	GetLoggerWithName("model_selection").Info("named")
	if !testLogger.ContainsField(ComponentKey, "model_selection") {
		t.Error("GetLoggerWithName should tag the component")
	}
}

func TestClose_Idempotent(t *testing.T) {
	logger, _, _ := newTestZerolog(t, "info")
	if err := logger.Close(); err != nil {
		t.Fatal(err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close() = %v, want nil", err)
	}
	if err := Nop().Close(); err != nil {
		t.Errorf("Nop().Close() = %v", err)
	}
}
