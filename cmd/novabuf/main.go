package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"

	"github.com/chzyer/readline"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/afero"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/tuannm99/novabuf/internal"
	"github.com/tuannm99/novabuf/internal/bufferpool"
	"github.com/tuannm99/novabuf/internal/logger"
	"github.com/tuannm99/novabuf/internal/storage"
)

// options are the command-line flags. Flags override the config file.
type options struct {
	configPath string
	dataDir    string
	base       string
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("novabuf", flag.ContinueOnError)
	fs.StringVar(&o.configPath, "config", "", "Path to YAML config file")
	fs.StringVar(&o.dataDir, "data-dir", "", "Working directory for page files (overrides storage.workdir)")
	fs.StringVar(&o.base, "file", "", "Base name of the page file (overrides storage.base)")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	return o, nil
}

func (o options) apply(cfg *internal.NovaBufConfig) {
	if o.dataDir != "" {
		cfg.Storage.Workdir = o.dataDir
	}
	if o.base != "" {
		cfg.Storage.Base = o.base
	}
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	cfg, err := internal.LoadConfig(opts.configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	opts.apply(cfg)

	lg, closeLog, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	if err := run(cfg, lg); err != nil {
		lg.Error("novabuf exited with error", zap.Error(err))
		_ = closeLog()
		os.Exit(1)
	}
	_ = closeLog()
}

func run(cfg *internal.NovaBufConfig, lg *zap.Logger) (err error) {
	file, err := storage.OpenPagedFile(afero.NewOsFs(), cfg.Storage.Workdir, cfg.Storage.Base)
	if err != nil {
		return fmt.Errorf("open page file: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	pool, err := bufferpool.New(cfg.Pool.Capacity, bufferpool.WithLogger(lg), bufferpool.WithMetrics(reg))
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, pool.Close()) }()

	if cfg.Metrics.Enabled {
		go serveMetrics(cfg.Metrics.Addr, reg, lg)
	}

	lg.Info("novabuf started",
		zap.String("file", file.Name()),
		zap.Int32("pages", int32(file.NumPages())),
		zap.Int("capacity", cfg.Pool.Capacity))

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "novabuf> ",
		HistoryFile:     filepath.Join(os.TempDir(), ".novabuf_history"),
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return fmt.Errorf("init readline: %w", err)
	}
	defer rl.Close()

	sh := newShell(pool, file, rl.Stdout())
	defer func() { err = multierr.Append(err, sh.releaseAll()) }()

	for {
		line, rerr := rl.Readline()
		if errors.Is(rerr, readline.ErrInterrupt) {
			if len(line) == 0 {
				return nil
			}
			continue
		}
		if errors.Is(rerr, io.EOF) {
			return nil
		}
		if rerr != nil {
			return rerr
		}

		quit, cerr := sh.exec(line)
		if cerr != nil {
			fmt.Fprintf(rl.Stderr(), "error: %v\n", cerr)
		}
		if quit {
			return nil
		}
	}
}

func serveMetrics(addr string, reg *prometheus.Registry, lg *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	lg.Info("serving metrics", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		lg.Error("metrics server stopped", zap.Error(err))
	}
}
