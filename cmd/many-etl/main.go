package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/systemstart/many-etl/pkg/api"
	"github.com/systemstart/many-etl/pkg/history"
	"github.com/systemstart/many-etl/pkg/logging"
	"github.com/systemstart/many-etl/pkg/processing"
)

var version = "dev"

const (
	_ = iota
	exitNoPipelineParameter
	exitDotenvError
	exitLoadPipelineFailed
	exitPipelineFailed
	exitLoggingSetupFailed
	exitLoadVariablesFailed
	exitHistoryFailed
	exitBadParameter
)

var (
	pipelineFile  string
	pipelineGlob  string
	preview       bool
	previewRows   int
	parallel      int
	historyDB     string
	variablesFile string
	envFile       string
	loggingType   string
	logLevel      string
	showVersion   bool
)

var cliVariables = map[string]string{}

func init() {
	flag.StringVar(
		&pipelineFile,
		"pipeline",
		"",
		"single pipeline definition (YAML or JSON) to run")
	flag.StringVar(
		&pipelineGlob,
		"pipelines",
		"",
		"doublestar pattern of pipeline definitions to run, e.g. 'pipelines/**/*.yaml'")
	flag.BoolVar(
		&preview,
		"preview",
		false,
		"run without writing to the target and include preview rows in the report")
	flag.IntVar(
		&previewRows,
		"preview-rows",
		processing.DefaultPreviewRows,
		"number of rows included in a preview (negative uses the default)")
	flag.IntVar(
		&parallel,
		"parallel",
		1,
		"number of pipelines run concurrently in -pipelines mode")
	flag.StringVar(
		&historyDB,
		"history-db",
		"",
		"SQLite file recording every run (disabled when empty)")
	flag.StringVar(
		&variablesFile,
		"vars",
		"",
		"YAML file of variables expanded in connector DSNs and tables")
	flag.Func(
		"var",
		"KEY=VALUE variable, overrides -vars (repeatable)",
		func(s string) error {
			k, v, ok := strings.Cut(s, "=")
			if !ok || k == "" {
				return fmt.Errorf("expected KEY=VALUE, got %q", s)
			}
			cliVariables[k] = v
			return nil
		})
	flag.StringVar(
		&envFile,
		"env-file",
		"",
		"dotenv file to load (default .env when present)")
	flag.StringVar(
		&loggingType,
		"logging-type",
		"tint",
		"logging type: json, text or tint")
	flag.StringVar(
		&logLevel,
		"log-level",
		"info",
		"logging level: debug, info, warn, error")
	flag.BoolVar(
		&showVersion,
		"version",
		false,
		"print version and exit")
}

func main() {
	flag.Parse()

	if showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := logging.Initialize(os.Stderr, loggingType, logLevel); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitLoggingSetupFailed)
	}

	includeEnv()

	if pipelineFile == "" && pipelineGlob == "" {
		slog.Error("one of -pipeline or -pipelines must be set")
		os.Exit(exitNoPipelineParameter)
	}
	if pipelineFile != "" && pipelineGlob != "" {
		slog.Error("-pipeline and -pipelines are mutually exclusive")
		os.Exit(exitBadParameter)
	}
	if parallel < 1 {
		slog.Error("-parallel must be at least 1", "parallel", parallel)
		os.Exit(exitBadParameter)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pipelines := loadPipelines()
	vars := loadVariables()

	r := &runner{
		vars:        vars,
		preview:     preview,
		previewRows: previewRows,
		parallel:    parallel,
		out:         os.Stdout,
	}
	if historyDB != "" {
		store, err := history.Open(ctx, historyDB)
		if err != nil {
			slog.Error("failed to open history database", "filename", historyDB, "error", err)
			os.Exit(exitHistoryFailed)
		}
		r.history = store
	}

	failed, err := r.runAll(ctx, pipelines)
	if r.history != nil {
		if cerr := r.history.Close(); cerr != nil {
			slog.Warn("failed to close history database", "error", cerr)
		}
	}
	if err != nil {
		slog.Error("processing failed", "error", err)
		stop()
		os.Exit(exitPipelineFailed)
	}
	if failed > 0 {
		slog.Error("pipelines failed", "failed", failed, "total", len(pipelines))
		stop()
		os.Exit(exitPipelineFailed)
	}

	slog.Info("done", "pipelines", len(pipelines))
}

func loadPipelines() []*api.Pipeline {
	if pipelineFile != "" {
		p, err := api.LoadPipeline(pipelineFile)
		if err != nil {
			slog.Error("failed to load pipeline", "filename", pipelineFile, "error", err)
			os.Exit(exitLoadPipelineFailed)
		}
		return []*api.Pipeline{p}
	}

	pipelines, err := processing.DiscoverPipelines(pipelineGlob)
	if err != nil {
		slog.Error("failed to discover pipelines", "pattern", pipelineGlob, "error", err)
		os.Exit(exitLoadPipelineFailed)
	}
	if len(pipelines) == 0 {
		slog.Warn("no pipelines matched", "pattern", pipelineGlob)
	}
	return pipelines
}

func loadVariables() map[string]string {
	var fileVars map[string]string
	if variablesFile != "" {
		var err error
		fileVars, err = processing.LoadVariablesFile(variablesFile)
		if err != nil {
			slog.Error("failed to load variables file", "filename", variablesFile, "error", err)
			os.Exit(exitLoadVariablesFailed)
		}
	}
	return processing.MergeVariables(fileVars, cliVariables)
}

func includeEnv() {
	var err error
	if envFile != "" {
		err = godotenv.Load(envFile)
	} else {
		err = godotenv.Load()
	}
	if err != nil {
		if envFile != "" || !os.IsNotExist(err) {
			slog.Error("failed to load .env", "error", err)
			os.Exit(exitDotenvError)
		}
		slog.Debug("no .env file found")
	} else {
		slog.Info("using .env file")
	}
}
