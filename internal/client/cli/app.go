package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/dmitrijs2005/medsync/internal/client/config"
	"github.com/dmitrijs2005/medsync/internal/client/connectivity"
	"github.com/dmitrijs2005/medsync/internal/client/gateway"
	"github.com/dmitrijs2005/medsync/internal/client/services"
	"github.com/dmitrijs2005/medsync/internal/client/store"
	"github.com/dmitrijs2005/medsync/internal/common"
	"github.com/dmitrijs2005/medsync/internal/filex"
	"github.com/dmitrijs2005/medsync/internal/logging"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/term"
)

type App struct {
	config    *config.Config
	logger    logging.Logger
	logCloser io.Closer
	catalogue *common.Catalogue
	store     *store.Store
	remote    gateway.Gateway
	monitor   *connectivity.Monitor
	coord     services.Coordinator
	registry  *prometheus.Registry
	reader    *bufio.Reader
	out       io.Writer

	watchMu   sync.Mutex
	stopWatch context.CancelFunc
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	policy, err := services.ParseDeletePolicy(c.DeletePolicy)
	if err != nil {
		return nil, err
	}

	for _, p := range []string{c.DatabasePath, c.LogFile} {
		if err := filex.EnsureParentDir(p); err != nil {
			return nil, err
		}
	}

	logger, logCloser := logging.NewFileLogger(c.LogFile, logging.ParseLevel(c.LogLevel))

	cat, err := common.NewCatalogue(common.HospitalCollections)
	if err != nil {
		_ = logCloser.Close()
		return nil, err
	}

	var storeOpts []store.Option
	if c.DatabasePath != ":memory:" {
		storeOpts = append(storeOpts, store.WithLockFile(c.DatabasePath+".lock"))
	}
	st, err := store.Open(ctx, c.DatabasePath, cat, storeOpts...)
	if err != nil {
		_ = logCloser.Close()
		if errors.Is(err, store.ErrLocked) {
			return nil, fmt.Errorf("%s: %w", c.DatabasePath, err)
		}
		return nil, fmt.Errorf("error initializing database: %w", err)
	}

	remote, err := gateway.NewHTTPGateway(c.ServerURL, gateway.WithHTTPClient(&http.Client{Timeout: c.RequestTimeout}))
	if err != nil {
		_ = st.Close()
		_ = logCloser.Close()
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	monitor := connectivity.NewMonitor(false, logger)
	coord := services.NewCoordinator(st, remote, monitor,
		services.WithLogger(logger),
		services.WithMetrics(services.NewMetrics(reg)),
		services.WithDeletePolicy(policy),
		services.WithCompaction(c.CompactUpdates),
		services.WithRequestTimeout(c.RequestTimeout),
		services.WithBackoff(c.RetryInitialInterval, c.RetryMaxInterval),
	)

	return &App{
		config:    c,
		logger:    logger,
		logCloser: logCloser,
		catalogue: cat,
		store:     st,
		remote:    remote,
		monitor:   monitor,
		coord:     coord,
		registry:  reg,
		reader:    bufio.NewReader(os.Stdin),
		out:       os.Stdout,
	}, nil
}

// Run starts the connectivity watcher, the background sync loop and the
// optional metrics listener, then serves the REPL until the user exits or
// stdin is closed.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.logger.Info(ctx, "client started", "server", a.config.ServerURL, "store", a.config.DatabasePath)
	a.startWatcher(ctx)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.coord.Run(ctx)
	}()

	if a.config.MetricsAddr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.serveMetrics(ctx); err != nil {
				a.logger.Error(ctx, "metrics listener", "error", err)
			}
		}()
	}

	fmt.Fprintln(a.out, "medsync client (type 'help' for commands)")

	var prompt func() string
	if term.IsTerminal(int(os.Stdin.Fd())) {
		prompt = func() string { return a.promptStatus(ctx) }
	}
	runREPL(ctx, a, prompt, a.reader, a.out)

	cancel()
	a.stopWatcher()
	wg.Wait()
	return nil
}

// Close releases the local store and the log file.
func (a *App) Close() error {
	return errors.Join(a.store.Close(), a.logCloser.Close())
}

func (a *App) startWatcher(ctx context.Context) {
	a.watchMu.Lock()
	defer a.watchMu.Unlock()
	if a.stopWatch != nil {
		return
	}
	wctx, cancel := context.WithCancel(ctx)
	a.stopWatch = cancel
	go a.monitor.Watch(wctx, a.remote, a.config.OnlineCheckInterval, a.config.RequestTimeout)
}

// stopWatcher reports whether a watcher was running.
func (a *App) stopWatcher() bool {
	a.watchMu.Lock()
	defer a.watchMu.Unlock()
	if a.stopWatch == nil {
		return false
	}
	a.stopWatch()
	a.stopWatch = nil
	return true
}

func (a *App) serveMetrics(ctx context.Context) error {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: a.config.MetricsAddr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (a *App) promptStatus(ctx context.Context) string {
	st, err := a.coord.Status(ctx)
	if err != nil {
		return "(?)"
	}
	mode := "offline"
	if st.Online {
		mode = "online"
	}
	if st.PendingCount == 0 {
		return fmt.Sprintf("(%s)", mode)
	}
	return fmt.Sprintf("(%s, %d pending)", mode, st.PendingCount)
}
