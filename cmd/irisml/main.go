// Command irisml trains and evaluates a logistic regression classifier on
// the bundled Iris dataset, logging every stage to the console and to an
// append-mode log file.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/YuminosukeSato/irisml/internal/config"
	"github.com/YuminosukeSato/irisml/internal/pipeline"
	"github.com/YuminosukeSato/irisml/internal/report"
	"github.com/YuminosukeSato/irisml/pkg/errors"
	"github.com/YuminosukeSato/irisml/pkg/log"
)

// errLogged marks errors that were already written to the log sinks.
var errLogged = errors.New("already logged")

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "irisml",
		Short:         "Train and evaluate a logistic regression classifier on the Iris dataset",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd)
		},
	}
	config.RegisterFlags(cmd.Flags())
	return cmd
}

func run(cmd *cobra.Command) error {
	v := viper.New()
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return err
	}
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(v, configFile)
	if err != nil {
		return err
	}

	logger, err := log.New(log.Config{
		Name:     log.DefaultName,
		Level:    cfg.LogLevel,
		FilePath: cfg.LogFile,
		Console:  cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	defer logger.Close()
	log.SetDefault(logger)
	defer log.SetDefault(nil)

	res, runErr := pipeline.Run(cmd.Context(), cfg, logger)
	if runErr != nil {
		return errors.Mark(runErr, errLogged)
	}

	if cfg.Report {
		if err := report.WriteTables(cmd.OutOrStdout(), res.Evaluation, res.Dataset.TargetNames); err != nil {
			logger.Error("Failed to write the evaluation report", err)
			return errors.Mark(err, errLogged)
		}
	}
	if cfg.Plot != "" {
		if err := report.SavePlot(cfg.Plot, res.Split.XTest, res.Evaluation,
			res.Dataset.FeatureNames, res.Dataset.TargetNames); err != nil {
			logger.Error("Failed to save the test set plot", err)
			return errors.Mark(err, errLogged)
		}
		logger.Debug(fmt.Sprintf("Saved test set plot to %s", cfg.Plot))
	}
	return nil
}

// exitCode maps the outcome of a run to the process exit status.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	return 1
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCommand().ExecuteContext(ctx)
	cancel()

	if err != nil && !errors.Is(err, errLogged) {
		fmt.Fprintln(os.Stderr, "irisml:", err)
	}
	os.Exit(exitCode(err))
}
