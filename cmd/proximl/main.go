package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/rmax-ai/proximl/pkg/auth"
	"github.com/rmax-ai/proximl/pkg/client"
	"github.com/rmax-ai/proximl/pkg/config"
	"github.com/rmax-ai/proximl/pkg/output"
	"github.com/rmax-ai/proximl/pkg/resources"
	"github.com/rmax-ai/proximl/pkg/store"
	"github.com/rmax-ai/proximl/pkg/store/redis"
)

var (
	version = "0.1.0"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Global flags
type globalFlags struct {
	project string
	output  string
	query   string
	verbose bool
}

// app carries the state shared by every command. The API client is built on
// first use so that local commands never touch the network.
type app struct {
	flags  globalFlags
	cfg    *config.Config
	logger *slog.Logger
	format output.Format

	client  *client.Client
	px      *resources.ProxiML
	archive *store.Store
	rdb     *goredis.Client
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "proximl",
		Short: "proximl - manage datasets, models, jobs and projects",
		Long: `proximl manages machine learning resources on the proximl platform.

Credentials and endpoints are read from ~/.proximl (environment.json,
config.json, credentials.json) and PROXIML_* environment variables.

Examples:
  proximl dataset list                        # Datasets in the active project
  proximl dataset wait ds-123 ready           # Block until the dataset is ready
  proximl job attach job-456                  # Stream job logs
  proximl job list -o json -q "[].name"       # Filter output with JMESPath
  proximl query GET /project                  # Raw API call`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.flags.project, "project", "", "Project to scope requests to (overrides the active project)")
	flags.StringVarP(&a.flags.output, "output", "o", "table", "Output format (table/json/yaml/csv)")
	flags.StringVarP(&a.flags.query, "query", "q", "", "JMESPath expression applied to the result")
	flags.BoolVarP(&a.flags.verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(newStorageCmd(a, "dataset", func(px *resources.ProxiML) *resources.StorageService { return px.Datasets }))
	rootCmd.AddCommand(newStorageCmd(a, "model", func(px *resources.ProxiML) *resources.StorageService { return px.Models }))
	rootCmd.AddCommand(newStorageCmd(a, "checkpoint", func(px *resources.ProxiML) *resources.StorageService { return px.Checkpoints }))
	rootCmd.AddCommand(newStorageCmd(a, "volume", func(px *resources.ProxiML) *resources.StorageService { return px.Volumes }))
	rootCmd.AddCommand(newJobCmd(a))
	rootCmd.AddCommand(newProjectCmd(a))
	rootCmd.AddCommand(newCloudbenderCmd(a))
	rootCmd.AddCommand(newQueryCmd(a))
	rootCmd.AddCommand(newLogsCmd(a))
	rootCmd.AddCommand(newMCPCmd(a))

	return rootCmd
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if a.flags.project != "" {
		cfg.Project = a.flags.project
	}
	a.cfg = cfg

	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	if a.flags.verbose {
		level = slog.LevelDebug
	}
	a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	if a.format, err = output.ParseFormat(a.flags.output); err != nil {
		return err
	}
	return nil
}

func (a *app) close() error {
	var firstErr error
	if a.archive != nil {
		if err := a.archive.Close(); err != nil {
			firstErr = err
		}
		a.archive = nil
	}
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		a.rdb = nil
	}
	return firstErr
}

// store opens the log archive, or returns nil when none is configured.
func (a *app) store() (*store.Store, error) {
	if a.archive != nil || a.cfg.LogArchive == "" {
		return a.archive, nil
	}
	st, err := store.NewStore(a.cfg.LogArchive)
	if err != nil {
		return nil, fmt.Errorf("failed to open log archive: %w", err)
	}
	st.SetLogger(a.logger)
	a.archive = st
	return st, nil
}

// api builds the resource services on first use.
func (a *app) api(ctx context.Context) (*resources.ProxiML, error) {
	if a.px != nil {
		return a.px, nil
	}

	var cache auth.Cache = auth.NewMemoryCache()
	var lock auth.Locker
	if a.cfg.RedisURL != "" {
		rdb, err := redis.Connect(ctx, a.cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		a.rdb = rdb
		cache = redis.NewTokenCache(rdb)
		lock = redis.NewExchangeLock(rdb)
	} else {
		st, err := a.store()
		if err != nil {
			return nil, err
		}
		if st != nil {
			lock = st
		}
	}

	tokens, err := a.cfg.TokenProvider(ctx, cache, lock, a.logger)
	if err != nil {
		return nil, err
	}
	cc := a.cfg.Client(a.logger)
	cc.Version = version
	a.client = client.New(cc, tokens)
	a.px = resources.New(a.client, resources.WithLogger(a.logger), resources.WithLogOutput(os.Stdout))
	return a.px, nil
}

// logHandler prints subscription frames to w and archives them when a log
// archive is configured.
func (a *app) logHandler(ctx context.Context, w io.Writer, src store.Source) (client.FrameHandler, error) {
	st, err := a.store()
	if err != nil {
		return nil, err
	}
	handler := resources.PrintLogs(w)
	if st != nil {
		handler = st.Archive(ctx, src, handler)
	}
	return handler, nil
}

// render writes v in the selected format, applying --query first. A query
// replaces the default columns since it reshapes the rows.
func (a *app) render(cmd *cobra.Command, v any, columns []output.Column) error {
	data, err := output.Filter(v, a.flags.query)
	if err != nil {
		return err
	}
	if a.flags.query != "" {
		columns = nil
	}
	return output.Render(cmd.OutOrStdout(), a.format, data, columns)
}

type rawEntity interface {
	Raw() json.RawMessage
}

func raws[T rawEntity](items []T) []json.RawMessage {
	out := make([]json.RawMessage, len(items))
	for i, item := range items {
		out[i] = item.Raw()
	}
	return out
}
