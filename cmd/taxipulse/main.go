// Command taxipulse serves the trip dashboard API or runs one analysis
// from the command line.
//
//	taxipulse serve [-config path] [-port n]
//	taxipulse analyze -file trips.csv -kind busiest-hours [-n 5] [-format csv|xlsx|pdf] [-out path]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"taxipulse/internal/app"
	"taxipulse/internal/config"
	"taxipulse/internal/dataprocessing"
	"taxipulse/internal/exporter"
	"taxipulse/internal/infrastructure"
	"taxipulse/internal/validation"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return exitUsage
	}

	switch args[0] {
	case "serve":
		return serve(args[1:], stderr)
	case "analyze":
		return analyze(args[1:], stdout, stderr)
	case "-h", "-help", "--help", "help":
		usage(stdout)
		return exitOK
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", args[0])
		usage(stderr)
		return exitUsage
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage:")
	fmt.Fprintln(w, "  taxipulse serve [-config path] [-port n]")
	fmt.Fprintln(w, "  taxipulse analyze -file trips.csv -kind <slug|all> [-n N] [-format csv|xlsx|pdf] [-out path]")
	fmt.Fprintln(w, "analysis kinds:")
	for _, k := range dataprocessing.Kinds() {
		fmt.Fprintf(w, "  %-30s %s\n", k.Slug(), k.Title())
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFrom(path)
	}
	return config.Load()
}

func serve(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "YAML config file (defaults to config.yaml lookup)")
	port := fs.Int("port", 0, "override the configured HTTP port")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "failed to load configuration: %v\n", err)
		return exitError
	}
	if *port != 0 {
		cfg.Server.Port = *port
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(stderr, "invalid configuration: %v\n", err)
			return exitUsage
		}
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(stderr, "failed to initialize logger: %v\n", err)
		return exitError
	}
	defer infrastructure.CloseLogFile()

	application, err := app.NewApplication(cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize application", slog.String("error", err.Error()))
		return exitError
	}
	if err := application.Run(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return exitError
	}
	return exitOK
}

type analyzeOptions struct {
	file    string
	kind    string
	n       int
	format  string
	out     string
	config  string
	verbose bool
}

func analyze(args []string, stdout, stderr io.Writer) int {
	var opts analyzeOptions
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.file, "file", "", "trip CSV to analyze (required)")
	fs.StringVar(&opts.kind, "kind", "", "analysis slug, or \"all\" for the whole catalog (required)")
	fs.IntVar(&opts.n, "n", 0, "result size for top-N analyses (0 uses the default)")
	fs.StringVar(&opts.format, "format", "", "export format; JSON is printed when empty")
	fs.StringVar(&opts.out, "out", "", "export file path (defaults to the exports directory)")
	fs.StringVar(&opts.config, "config", "", "YAML config file")
	fs.BoolVar(&opts.verbose, "v", false, "log progress to stderr")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if opts.file == "" || opts.kind == "" {
		fmt.Fprintln(stderr, "analyze requires -file and -kind")
		fs.Usage()
		return exitUsage
	}

	requests, err := analysisRequests(opts.kind, opts.n)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}
	var format exporter.Format
	if opts.format != "" {
		if format, err = exporter.ParseFormat(opts.format); err != nil {
			fmt.Fprintln(stderr, err)
			return exitUsage
		}
	}

	cfg, err := loadConfig(opts.config)
	if err != nil {
		fmt.Fprintf(stderr, "failed to load configuration: %v\n", err)
		return exitError
	}

	level := slog.LevelWarn
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := infrastructure.NewLoggerWithWriter(stderr, &slog.HandlerOptions{Level: level})

	results, err := runAnalyses(context.Background(), cfg, logger, opts.file, requests)
	if err != nil {
		fmt.Fprintf(stderr, "analyze: %v\n", err)
		return exitError
	}

	if format == "" {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		var payload interface{} = results
		if len(results) == 1 {
			payload = results[0]
		}
		if err := enc.Encode(payload); err != nil {
			fmt.Fprintf(stderr, "analyze: %v\n", err)
			return exitError
		}
		return exitOK
	}

	path, err := export(cfg, logger, opts, format, results)
	if err != nil {
		fmt.Fprintf(stderr, "export: %v\n", err)
		return exitError
	}
	fmt.Fprintln(stdout, path)
	return exitOK
}

func analysisRequests(slug string, n int) ([]dataprocessing.AnalysisRequest, error) {
	if strings.EqualFold(slug, "all") {
		kinds := dataprocessing.Kinds()
		reqs := make([]dataprocessing.AnalysisRequest, 0, len(kinds))
		for _, k := range kinds {
			reqs = append(reqs, dataprocessing.AnalysisRequest{Kind: k})
		}
		return reqs, nil
	}
	kind, err := dataprocessing.ParseKind(slug)
	if err != nil {
		return nil, err
	}
	return []dataprocessing.AnalysisRequest{{Kind: kind, N: n}}, nil
}

// runAnalyses loads file and runs reqs. With more than one request, kinds
// whose columns are missing are skipped; a single request fails instead.
func runAnalyses(ctx context.Context, cfg *config.Config, logger *slog.Logger, file string,
	reqs []dataprocessing.AnalysisRequest) ([]*dataprocessing.Result, error) {
	if err := validation.NewFileValidator(cfg.Ingestion.MaxUploadBytes, logger).ValidateCSVFile(file); err != nil {
		return nil, err
	}

	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	loader := dataprocessing.NewLoader(dataprocessing.OptionsFromConfig(cfg.Ingestion), logger, infrastructure.NoopPipelineMetrics())
	table, err := loader.Load(ctx, f)
	if err != nil {
		return nil, err
	}

	results := make([]*dataprocessing.Result, 0, len(reqs))
	for _, req := range reqs {
		res, err := dataprocessing.Run(table, req)
		if err != nil {
			if len(reqs) == 1 || !errors.Is(err, dataprocessing.ErrColumnNotFound) {
				return nil, err
			}
			logger.Warn("analysis skipped",
				slog.String("kind", req.Kind.Slug()),
				slog.String("error", err.Error()))
			continue
		}
		results = append(results, res)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("no analysis produced a result for %s", filepath.Base(file))
	}
	return results, nil
}

func export(cfg *config.Config, logger *slog.Logger, opts analyzeOptions, format exporter.Format,
	results []*dataprocessing.Result) (string, error) {
	title := filepath.Base(opts.file)

	if opts.out == "" {
		paths, err := config.GetPaths(cfg.Paths)
		if err != nil {
			return "", err
		}
		exp := exporter.NewExporter(paths, cfg.Export, logger)
		return exp.SaveResults(exporter.Stem(title, opts.kind), format, title, results...)
	}

	exp := exporter.NewExporter(nil, cfg.Export, logger)
	f, err := os.Create(opts.out)
	if err != nil {
		return "", err
	}
	if err := exp.WriteResults(f, format, title, results...); err != nil {
		f.Close()
		os.Remove(opts.out)
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return opts.out, nil
}
