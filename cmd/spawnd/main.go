// Command spawnd serves the swarm lifecycle API.
package main

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"swarmspawn/internal/adapters/spawn"
	"swarmspawn/internal/auth"
	"swarmspawn/internal/config"
	"swarmspawn/internal/core"
	"swarmspawn/internal/kv"
	"swarmspawn/internal/observability"
)

const shutdownGrace = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Getenv, os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "spawnd: %v\n", err)
		os.Exit(1)
	}
}

type flags struct {
	configPath string
	addr       string
	auditLog   string
	traceLog   string
	jsonLogs   bool
}

func parseFlags(args []string) (flags, error) {
	var f flags
	fs := pflag.NewFlagSet("spawnd", pflag.ContinueOnError)
	fs.StringVar(&f.configPath, "config", "", "path to a TOML config file")
	fs.StringVar(&f.addr, "addr", "", "listen address (overrides config and SPAWN_ADDR)")
	fs.StringVar(&f.auditLog, "audit-log", "", "append audit entries as JSON lines to this file")
	fs.StringVar(&f.traceLog, "trace-log", "", "append operation spans as JSON lines to this file")
	fs.BoolVar(&f.jsonLogs, "json-logs", false, "write JSON logs instead of console output")
	if err := fs.Parse(args); err != nil {
		return flags{}, err
	}
	if fs.NArg() > 0 {
		return flags{}, fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}
	return f, nil
}

func run(ctx context.Context, args []string, getenv func(string) string, stdout io.Writer) error {
	f, err := parseFlags(args)
	if err != nil {
		return err
	}
	cfg, err := config.Load(f.configPath, getenv)
	if err != nil {
		return err
	}
	if f.addr != "" {
		cfg.Addr = f.addr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, _ := observability.ParseLevel(cfg.LogLevel)
	var out io.Writer
	if f.jsonLogs {
		out = stdout
	}
	logger := observability.NewLogger("spawnd", level, out)

	app, err := build(ctx, cfg, f, logger, prometheus.NewRegistry())
	if err != nil {
		return err
	}
	defer app.close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Addr).Str("kv_driver", string(cfg.KVDriver)).Msg("spawnd listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	logger.Info().Msg("spawnd shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type application struct {
	handler http.Handler
	service *core.Service
	closers []io.Closer
}

func (a *application) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i].Close()
	}
}

// build opens the stores and assembles the HTTP surface.
func build(ctx context.Context, cfg config.Config, f flags, logger zerolog.Logger, reg *prometheus.Registry) (*application, error) {
	app := &application{}
	fail := func(err error) (*application, error) {
		app.close()
		return nil, err
	}

	users, err := kv.Open(ctx, cfg.StoreOptions(cfg.UserInfoDBPath))
	if err != nil {
		return fail(fmt.Errorf("open user index store: %w", err))
	}
	app.closers = append(app.closers, users)
	swarms, err := kv.Open(ctx, cfg.StoreOptions(cfg.SwarmsDBPath))
	if err != nil {
		return fail(fmt.Errorf("open swarm store: %w", err))
	}
	app.closers = append(app.closers, swarms)

	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := observability.NewMetrics(reg)
	if err != nil {
		return fail(err)
	}
	expvarMetrics := core.NewExpvarMetricsRecorder("")

	opts := []core.ServiceOption{
		core.WithLogger(observability.NewServiceLogger(logger)),
		core.WithMetricsRecorder(fanoutMetrics{metrics, expvarMetrics}),
		core.WithStoreTimeout(cfg.StoreTimeout),
	}
	if f.auditLog != "" {
		file, err := openAppend(f.auditLog)
		if err != nil {
			return fail(err)
		}
		app.closers = append(app.closers, file)
		opts = append(opts, core.WithAuditRecorder(core.NewJSONAuditRecorder(file)))
	}
	if f.traceLog != "" {
		file, err := openAppend(f.traceLog)
		if err != nil {
			return fail(err)
		}
		app.closers = append(app.closers, file)
		opts = append(opts, core.WithTracer(core.NewJSONTracer(file)))
	}

	svc, err := core.NewService(users, swarms, opts...)
	if err != nil {
		return fail(err)
	}
	app.service = svc
	for _, user := range cfg.BootstrapUsers {
		if _, err := svc.EnsureUserIndex(ctx, user); err != nil {
			return fail(fmt.Errorf("bootstrap user %s: %w", user, err))
		}
	}

	identity := auth.NewStaticTokens(cfg.Tokens)
	if identity.Len() == 0 {
		logger.Warn().Msg("no tokens configured; every /spawn request will be rejected")
	}
	api := spawn.NewHandler(svc, identity, cfg.CORSOrigins...)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Handle("/debug/vars", expvar.Handler())
	mux.Handle("/", observability.RequestMetrics(metrics, spawn.Routes()...)(
		observability.RequestLogger(logger)(api),
	))
	app.handler = mux
	return app, nil
}

// fanoutMetrics feeds one observation to several recorders.
type fanoutMetrics []core.MetricsRecorder

func (f fanoutMetrics) Observe(ctx context.Context, operation string, success bool, duration time.Duration) {
	for _, m := range f {
		m.Observe(ctx, operation, success, duration)
	}
}

func openAppend(path string) (*os.File, error) {
	// #nosec G304 -- operator supplied log path
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return file, nil
}
