package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"qline/internal/api"
	"qline/internal/certify"
	"qline/internal/config"
	"qline/internal/diagnosis"
	"qline/internal/jobs"
	"qline/internal/lifecycle"
	"qline/internal/metrics"
	"qline/internal/notifications"
)

// Daemon coordinates the API server and background sweep, and enforces
// single-instance execution through a file lock.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *jobs.Store
	engine    *lifecycle.Engine
	service   *api.JobService
	collector *metrics.Collector

	lockPath string
	pidPath  string
	lock     *flock.Flock

	listener net.Listener
	server   *http.Server

	running atomic.Bool
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	DBPath       string
	LockFilePath string
	BindAddress  string
}

// New constructs a daemon with initialized collaborators. The store is owned
// by the daemon and closed on shutdown.
func New(cfg *config.Config, store *jobs.Store, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || logger == nil {
		return nil, errors.New("daemon requires config, store, and logger")
	}

	notifier := notifications.NewService(cfg)
	tracker := diagnosis.NewTracker(store, notifier, logger)
	engine := lifecycle.NewEngine(store, tracker, notifier, logger)
	issuer := certify.NewIssuer(store, notifier, logger)
	service := api.NewJobService(store, engine, tracker, issuer)

	lockPath := filepath.Join(cfg.Paths.DataDir, "qlined.lock")
	d := &Daemon{
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "daemon")),
		store:     store,
		engine:    engine,
		service:   service,
		collector: metrics.NewCollector(),
		lockPath:  lockPath,
		pidPath:   filepath.Join(cfg.Paths.DataDir, "qlined.pid"),
		lock:      flock.New(lockPath),
	}
	d.server = &http.Server{
		Handler:           d.router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return d, nil
}

// Run starts the API server and sweep, then blocks until the context is
// canceled or a component fails.
func (d *Daemon) Run(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another qlined instance is already running")
	}
	defer func() {
		_ = d.lock.Unlock()
		_ = os.Remove(d.pidPath)
	}()

	if err := os.WriteFile(d.pidPath, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}

	bind := strings.TrimSpace(d.cfg.Paths.APIBind)
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		return fmt.Errorf("api listen on %s: %w", bind, err)
	}
	d.listener = listener
	d.running.Store(true)
	defer d.running.Store(false)

	d.logger.Info("qlined started",
		slog.String("address", listener.Addr().String()),
		slog.String("db", d.store.Path()),
		slog.String("lock", d.lockPath))

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if serveErr := d.server.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", serveErr)
		}
		return nil
	})
	group.Go(func() error {
		return d.runSweep(groupCtx)
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = d.server.Shutdown(shutdownCtx)
		return nil
	})

	err = group.Wait()
	d.logger.Info("qlined stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Status reports runtime information for status output.
func (d *Daemon) Status() Status {
	addr := strings.TrimSpace(d.cfg.Paths.APIBind)
	if d.listener != nil {
		addr = d.listener.Addr().String()
	}
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		DBPath:       d.store.Path(),
		LockFilePath: d.lockPath,
		BindAddress:  addr,
	}
}

// ReadPIDFile reads a daemon pid file, for client-side liveness checks.
func ReadPIDFile(cfg *config.Config) (int, error) {
	data, err := os.ReadFile(filepath.Join(cfg.Paths.DataDir, "qlined.pid"))
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}
