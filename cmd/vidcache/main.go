// Command vidcache maintains a cache of video fingerprints for a set of
// directories.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/wolfeidau/vid-cache/cache"
	"github.com/wolfeidau/vid-cache/store"
)

var version = "dev"

const defaultConfigPath = "~/.config/vidcache/config.toml"

// Globals are flags shared by every command.
type Globals struct {
	CacheFile        string          `name:"cache-file" default:"vidcache.db" help:"Path to the cache database."`
	SaveThreshold    uint32          `name:"save-threshold" default:"100" help:"Save the cache after this many changes (0 disables autosave)."`
	LogLevel         string          `name:"log-level" enum:"debug,info,warn,error" default:"info" help:"Log level (${enum})."`
	LogFormat        string          `name:"log-format" enum:"tint,text,json" default:"tint" help:"Log format (${enum})."`
	LogFile          string          `name:"log-file" help:"Write logs to a rotating file instead of stderr."`
	Config           kong.ConfigFlag `name:"config" help:"Path to a TOML config file."`
	OTLPEndpoint     string          `name:"otlp-endpoint" help:"OTLP gRPC endpoint for metrics export."`
	PrometheusListen string          `name:"prometheus-listen" help:"Address to serve Prometheus metrics on, e.g. :9090."`
}

// CLI is the command tree.
type CLI struct {
	Globals

	Version kong.VersionFlag `help:"Print version and exit."`

	Update UpdateCmd `cmd:"" help:"Fingerprint new and changed videos under the source paths."`
	Fetch  FetchCmd  `cmd:"" help:"Print the cached fingerprint for a file."`
	List   ListCmd   `cmd:"" help:"List successfully fingerprinted files."`
	Prune  PruneCmd  `cmd:"" help:"Evict entries for files that no longer exist."`
	Stats  StatsCmd  `cmd:"" help:"Summarise the cache contents."`
}

// runContext is bound to every command's Run method.
type runContext struct {
	ctx     context.Context
	globals *Globals
	logger  *slog.Logger
	out     io.Writer
}

func (rc *runContext) openCache(opts ...cache.Option) (*cache.Cache, error) {
	path, err := filepath.Abs(rc.globals.CacheFile)
	if err != nil {
		return nil, fmt.Errorf("resolving cache file: %w", err)
	}
	opts = append([]cache.Option{
		cache.WithLogger(rc.logger),
		cache.WithStoreOptions(store.WithLogger(rc.logger)),
	}, opts...)
	return cache.Open(path, rc.globals.SaveThreshold, opts...)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := execute(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newParser(cli *CLI, stdout, stderr io.Writer) (*kong.Kong, error) {
	return kong.New(cli,
		kong.Name("vidcache"),
		kong.Description("Maintain a cache of video fingerprints for a set of directories."),
		kong.UsageOnError(),
		kong.Writers(stdout, stderr),
		kong.Configuration(tomlLoader, defaultConfigPath),
		kong.Vars{"version": version},
	)
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var cli CLI
	parser, err := newParser(&cli, stdout, stderr)
	if err != nil {
		return err
	}

	kctx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	logger, closeLog, err := newLogger(&cli.Globals, stderr)
	if err != nil {
		return err
	}
	defer func() { _ = closeLog.Close() }()

	shutdown, err := startMetrics(ctx, &cli.Globals, logger)
	if err != nil {
		return err
	}
	defer shutdown()

	return kctx.Run(&runContext{
		ctx:     ctx,
		globals: &cli.Globals,
		logger:  logger,
		out:     stdout,
	})
}
