package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/chrissnell/landchange/internal/managers"
	"github.com/chrissnell/landchange/internal/metrics"
	"github.com/chrissnell/landchange/internal/segment"
	"github.com/chrissnell/landchange/internal/storage"
	"github.com/chrissnell/landchange/internal/structbreak"
	"github.com/chrissnell/landchange/internal/timeseries"
	"github.com/chrissnell/landchange/pkg/config"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// App represents the main application
type App struct {
	configProvider config.ConfigProvider
	logger         *zap.SugaredLogger
	metrics        *metrics.Metrics
	runID          uuid.UUID
	started        time.Time

	pixels    atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64
	breaks    atomic.Int64
	done      atomic.Bool
}

// Status is a snapshot of the run's progress
type Status struct {
	RunID     uuid.UUID `json:"run_id"`
	Started   time.Time `json:"started"`
	Pixels    int64     `json:"pixels"`
	Processed int64     `json:"processed"`
	Failed    int64     `json:"failed"`
	Breaks    int64     `json:"breaks"`
	Done      bool      `json:"done"`
}

// New creates a new application instance
func New(configProvider config.ConfigProvider, logger *zap.SugaredLogger) *App {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &App{
		configProvider: configProvider,
		logger:         logger,
		metrics:        metrics.New(),
		runID:          uuid.New(),
	}
}

// RunID identifies this run on every stored row
func (a *App) RunID() uuid.UUID {
	return a.runID
}

// Metrics returns the application's collectors
func (a *App) Metrics() *metrics.Metrics {
	return a.metrics
}

// Status returns the current progress
func (a *App) Status() Status {
	return Status{
		RunID:     a.runID,
		Started:   a.started,
		Pixels:    a.pixels.Load(),
		Processed: a.processed.Load(),
		Failed:    a.failed.Load(),
		Breaks:    a.breaks.Load(),
		Done:      a.done.Load(),
	}
}

// Run loads the configuration, processes every pixel of the input and
// returns once all results are stored or the run is interrupted.
func (a *App) Run(ctx context.Context) error {
	a.started = time.Now()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := a.configProvider.LoadConfig()
	if err != nil {
		return fmt.Errorf("could not load configuration: %w", err)
	}

	a.logger.Infow("starting change detection run",
		"run_id", a.runID,
		"input", cfg.Input.Path,
		"workers", cfg.Workers,
		"frequencies", cfg.Input.Frequencies,
	)

	ds, err := timeseries.ReadFile(cfg.Input.Path)
	if err != nil {
		return fmt.Errorf("could not read input: %w", err)
	}
	a.pixels.Store(int64(len(ds.Pixels)))
	a.logger.Infof("read %d pixels with %d bands", len(ds.Pixels), len(ds.Bands))

	sm, err := managers.NewStorageManager(ctx, &cfg.Storage, a.metrics, a.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := sm.Close(); err != nil {
			a.logger.Errorf("error closing storage: %v", err)
		}
	}()

	if cfg.Metrics.ListenAddr != "" {
		srvCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		router := metrics.NewRouter(a.metrics, func() any { return a.Status() })
		go func() {
			if err := metrics.Serve(srvCtx, cfg.Metrics.ListenAddr, router, a.logger); err != nil {
				a.logger.Errorf("metrics server: %v", err)
			}
		}()
	}

	err = a.process(ctx, cfg, ds.Pixels, sm)
	a.done.Store(true)

	st := a.Status()
	a.logger.Infow("change detection run finished",
		"run_id", a.runID,
		"processed", st.Processed,
		"failed", st.Failed,
		"breaks", st.Breaks,
		"elapsed", time.Since(a.started).String(),
	)

	if err != nil && ctx.Err() != nil {
		a.logger.Info("shutdown signal received, run interrupted")
	}
	return err
}

// process runs the detector on every pixel with at most cfg.Workers in
// flight.
func (a *App) process(ctx context.Context, cfg *config.ConfigData, pixels []*timeseries.Pixel, sink storage.Sink) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)

	for _, p := range pixels {
		if gctx.Err() != nil {
			break
		}
		p := p
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return a.processPixel(gctx, cfg, p, sink)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (a *App) processPixel(ctx context.Context, cfg *config.ConfigData, p *timeseries.Pixel, sink storage.Sink) error {
	start := time.Now()
	logger := a.logger.With("px", p.Px, "py", p.Py)

	X, Y := p.Design(cfg.Input.Frequencies)
	d, err := segment.New(X, Y, cfg.Detection.ToModelConfig(p.Px, p.Py), logger)
	if err != nil {
		reason := "invalid"
		if errors.Is(err, segment.ErrInsufficientObservations) {
			reason = "insufficient_observations"
		}
		return a.fail(cfg, logger, p, reason, err)
	}

	if err := d.Run(); err != nil {
		return a.fail(cfg, logger, p, "fit", err)
	}

	var robust *segment.Store
	if cfg.Detection.Robust {
		if robust, err = d.RobustRecords(); err != nil {
			return a.fail(cfg, logger, p, "fit", err)
		}
	}
	a.metrics.PixelDuration.Observe(time.Since(start).Seconds())

	res := storage.NewPixelResult(a.runID, p.Px, p.Py, d.FitBands(), d.Records(), robust)
	if rc := cfg.Detection.ResidualCheck; rc != nil {
		if err := checkResiduals(d, res.Segments, rc); err != nil {
			return a.fail(cfg, logger, p, "fit", err)
		}
	}
	nBreaks := len(res.Breaks())
	logger.Debugw("pixel processed", "segments", len(res.Segments), "breaks", nBreaks)

	if err := sink.Store(ctx, res); err != nil {
		return a.fail(cfg, logger, p, "store", err)
	}

	a.metrics.PixelsProcessed.Inc()
	a.metrics.BreaksDetected.Add(float64(nBreaks))
	a.metrics.ResidualBreaks.Add(float64(res.Checked()))
	a.processed.Add(1)
	a.breaks.Add(int64(nBreaks))
	return nil
}

// fail records a pixel failure. Unless the run is fail-fast the error is
// swallowed so the remaining pixels still run.
func (a *App) fail(cfg *config.ConfigData, logger *zap.SugaredLogger, p *timeseries.Pixel, reason string, err error) error {
	a.metrics.PixelsFailed.WithLabelValues(reason).Inc()
	a.failed.Add(1)
	logger.Warnw("pixel failed", "reason", reason, "error", err)

	if cfg.FailFast {
		return fmt.Errorf("pixel (%d,%d): %w", p.Px, p.Py, err)
	}
	return nil
}

// checkResiduals runs the EWMA control chart over the residuals of every
// segment in the configured band. Segments with fewer than two working
// observations are left unchecked.
func checkResiduals(d *segment.Detector, segs []storage.Segment, rc *config.ResidualCheckData) error {
	for i := range segs {
		dates, resid, err := d.Residuals(d.Records().At(i), rc.Band)
		if err != nil {
			return err
		}
		if len(resid) < 2 {
			continue
		}

		res, err := structbreak.EWMA(resid, rc.Lambda, rc.Crit, structbreak.SDType(rc.SDType))
		if err != nil {
			return fmt.Errorf("residual check of segment %d: %w", i, err)
		}
		segs[i].Check = &storage.Check{
			Method: res.Method,
			Band:   rc.Band,
			Date:   int(dates[res.Index]),
			Score:  res.Score,
			Signif: res.Signif,
		}
	}
	return nil
}
