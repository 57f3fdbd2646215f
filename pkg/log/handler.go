package log

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

const (
	// ErrAttrKey is the field name used for the error passed as the first field of Logger.Error.
	ErrAttrKey = "error"
	// StacktraceAttrKey is the field name holding the stack trace of ErrAttrKey.
	StacktraceAttrKey = "stacktrace"

	// timestampLayout renders "2026-01-02 15:04:05,123".
	timestampLayout = "2006-01-02 15:04:05,000"
)

func init() {
	// ミリ秒まで表示するため
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.ErrorStackFieldName = StacktraceAttrKey
	zerolog.ErrorStackMarshaler = marshalStack
}

// textFieldsExclude lists the structured fields kept out of the text sinks.
// Only the error, its stack trace and ErrorTypeKey follow the message, so a
// record without an error ends exactly at <message>.
var textFieldsExclude = []string{
	ModelNameKey, OperationKey, ComponentKey, StageKey,
	SamplesKey, FeaturesKey, ClassesKey,
	DurationMsKey, AccuracyKey, LossKey, IterationKey,
	ThresholdKey, WarningKey,
	HyperParamsKey, RandomSeedKey, TestSizeKey,
}

// newConsoleWriter builds a sink that renders one record per line as
//
//	<timestamp> - <name> - <LEVEL> - <message> [error=... error.type=... stacktrace=...]
//
// Both the console and the file sink use the same writer configuration so
// the two outputs stay line-for-line identical.
func newConsoleWriter(out io.Writer, name string) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:     out,
		NoColor: true,
		PartsOrder: []string{
			zerolog.TimestampFieldName,
			zerolog.LevelFieldName,
			zerolog.MessageFieldName,
		},
		FormatTimestamp: func(i interface{}) string {
			return formatTimestamp(i) + " - " + name + " -"
		},
		FormatLevel:   formatLevel,
		FieldsExclude: textFieldsExclude,
	}
}

func formatTimestamp(i interface{}) string {
	s, ok := i.(string)
	if !ok {
		return fmt.Sprint(i)
	}
	ts, err := time.Parse(zerolog.TimeFieldFormat, s)
	if err != nil {
		return s
	}
	return ts.Local().Format(timestampLayout)
}

func formatLevel(i interface{}) string {
	l, _ := i.(string)
	switch l {
	case zerolog.LevelWarnValue:
		return "WARNING -"
	case "":
		return "- -"
	default:
		return strings.ToUpper(l) + " -"
	}
}

// marshalStack extracts the stack trace recorded by cockroachdb/errors.
// The outermost layer carrying a stack wins.
func marshalStack(err error) interface{} {
	if st := extractStacktrace(err); st != "" {
		return st
	}
	return nil
}

func extractStacktrace(err error) string {
	for e := err; e != nil; e = errors.UnwrapOnce(e) {
		safeDetails := errors.GetSafeDetails(e).SafeDetails
		if len(safeDetails) > 0 && strings.Contains(safeDetails[0], ".go:") {
			return safeDetails[0]
		}
	}
	return ""
}

// field is one normalized key/value pair.
type field struct {
	key   string
	value any
}

// normalizeFields turns the variadic slog-style arguments into pairs.
// A bare error in key position is recorded under ErrAttrKey, a dangling key
// under "!BADKEY" the way log/slog does it.
func normalizeFields(fields []any) []field {
	out := make([]field, 0, len(fields)/2+1)
	for i := 0; i < len(fields); {
		if err, ok := fields[i].(error); ok {
			out = append(out, field{key: ErrAttrKey, value: err})
			i++
			continue
		}
		if i+1 >= len(fields) {
			out = append(out, field{key: "!BADKEY", value: fields[i]})
			break
		}
		out = append(out, field{key: fmt.Sprint(fields[i]), value: fields[i+1]})
		i += 2
	}
	return out
}
