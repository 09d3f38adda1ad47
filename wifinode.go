package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"lautenbacher.net/wifinode/at"
	"lautenbacher.net/wifinode/config"
	"lautenbacher.net/wifinode/logging"
	"lautenbacher.net/wifinode/monitor"
	"lautenbacher.net/wifinode/node"
	"lautenbacher.net/wifinode/platform"
	"lautenbacher.net/wifinode/schedule"
	"lautenbacher.net/wifinode/session"
	"lautenbacher.net/wifinode/sim"
	"lautenbacher.net/wifinode/wire"
)

const (
	// first activity threshold of the energy classifier, in g² per step
	energyThreshold = 1e-3
	simSeed         = 42
)

var (
	errReload = errors.New("reload requested")
	errStop   = errors.New("stop requested")
)

// App is one node process. Run builds the whole stack from the config
// file and tears it down again on reload or exit.
type App struct {
	cfile    string
	backend  string
	monitor  bool
	httpAddr string
	ossignal chan os.Signal
}

func NewApp(ossignal chan os.Signal) *App {
	return &App{cfile: config.CONFILE, ossignal: ossignal}
}

func main() {
	ossignal := make(chan os.Signal, 1)
	signal.Notify(ossignal, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	app := NewApp(ossignal)
	flag.StringVar(&app.cfile, "c", config.CONFILE, "Config file to use")
	flag.StringVar(&app.backend, "backend", "", "Override Hardware.Backend (periph, rpio or sim)")
	flag.BoolVar(&app.monitor, "monitor", false, "Show the terminal link monitor")
	flag.StringVar(&app.httpAddr, "http", "", "Serve the runtime config API on this address")
	flag.Parse()

	for {
		err := app.Run(context.Background())
		switch {
		case errors.Is(err, errReload):
			slog.Info("Reloading config file and restarting", "file", app.cfile)
		case errors.Is(err, errStop), errors.Is(err, monitor.ErrClosed), err == nil:
			slog.Info("Exiting")
			os.Exit(0)
		default:
			slog.Error("Node failed", "error", err)
			os.Exit(1)
		}
	}
}

// Run reads the configuration and runs the node until it fails or a
// signal arrives. SIGHUP yields errReload, SIGINT and SIGTERM errStop.
func (a *App) Run(ctx context.Context) error {
	conf, err := config.ReadConfig(a.cfile)
	if err != nil {
		return err
	}
	if a.backend != "" {
		conf.Hardware.Backend = a.backend
	}
	lc := conf.Logging.Headless
	if a.monitor {
		lc = conf.Logging.Monitor
	}
	if err := logging.Init(a.monitor, lc, conf.Logging.Serial); err != nil {
		return fmt.Errorf("failed to initialise logging: %w", err)
	}
	defer func() {
		if err := logging.Close(); err != nil {
			fmt.Fprintln(os.Stderr, "closing log:", err)
		}
	}()
	slog.Info("Starting wifinode", "node", conf.Node.Name, "config", a.cfile, "backend", conf.Hardware.Backend)

	link, err := platform.Open(conf.Hardware)
	if err != nil {
		return err
	}
	defer link.Close()

	var viewer *monitor.LinkViewer
	if a.monitor {
		viewer = monitor.NewLinkViewer(a.ossignal, conf.Hardware.Backend)
		defer logging.SetOutput(os.Stderr)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.waitForSignal(gctx) })
	g.Go(func() error { return runNode(gctx, conf, link, viewer) })
	if viewer != nil {
		g.Go(func() error { return viewer.Run(gctx) })
	}
	g.Go(func() error {
		return config.Watch(gctx, a.cfile, func(c *config.Config) {
			lc := c.Logging.Headless
			if a.monitor {
				lc = c.Logging.Monitor
			}
			logging.SetLevel(lc.Level)
			slog.Info("Log level changed", "level", logging.Level())
		})
	})
	if a.httpAddr != "" {
		g.Go(func() error { return serveConfig(gctx, a.httpAddr, a.cfile) })
	}
	return g.Wait()
}

func (a *App) waitForSignal(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	case sig := <-a.ossignal:
		slog.Info("Received signal", "signal", sig)
		if sig == syscall.SIGHUP {
			return errReload
		}
		return errStop
	}
}

// runNode brings the session up and runs the sensing tasks until ctx ends.
func runNode(ctx context.Context, conf *config.Config, link platform.Link, viewer *monitor.LinkViewer) error {
	transport := wire.NewTransport(link, link, wire.Options{
		Timeout:      conf.Module.Timeout,
		PollInterval: conf.Module.PollInterval,
		ResetPulse:   conf.Module.ResetPulse,
		BootDelay:    conf.Module.BootDelay,
	})
	engine, err := at.NewEngine(transport, conf.Module.TxBuffer, conf.Module.RxBuffer)
	if err != nil {
		return err
	}
	engine.Observe(func(x at.Exchange) {
		slog.Debug("Exchange", "kind", x.Kind, "request", strconv.Quote(string(x.Request)),
			"response", strconv.Quote(x.Response), "elapsed", x.Elapsed, "error", x.Err)
		if viewer != nil {
			viewer.OnExchange(x)
		}
	})

	handle, err := conf.SessionHandle()
	if err != nil {
		return err
	}
	server, err := conf.ServerAddr()
	if err != nil {
		return err
	}
	opts := []session.Option{session.WithBanner(conf.Module.Banner)}
	if viewer != nil {
		opts = append(opts, session.WithStateObserver(viewer.OnState))
	}
	ctrl := session.NewController(engine, handle, opts...)
	if err := ctrl.Start(ctx, server); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	defer func() {
		dctx, cancel := context.WithTimeout(context.Background(), conf.Module.Timeout)
		defer cancel()
		if err := ctrl.Disconnect(dctx); err != nil {
			slog.Warn("Disconnect failed", "error", err)
		}
	}()

	model, err := node.NewEnergyClassifier(conf.Inference.WindowSize, len(conf.Inference.Labels), energyThreshold)
	if err != nil {
		return err
	}
	n, err := node.New(sensorsFor(conf), model, ctrl, node.Settings{
		Scale:  float32(conf.Inference.Scale),
		Labels: conf.Inference.Labels,
	})
	if err != nil {
		return err
	}
	if err := n.Announce(ctx, node.Identity{Name: conf.Node.Name, Type: conf.Node.Type, Position: conf.Node.Position}); err != nil {
		return err
	}

	exec := schedule.New(conf.Tasks.MinorCycle)
	if err := n.Schedule(exec, conf.Tasks.Periods()); err != nil {
		return err
	}
	if viewer != nil {
		go viewer.Follow(ctx, n.Readings, n.Activity)
	}
	return exec.Run(ctx)
}

// sensorsFor returns the sensor set. Every backend reads the random walk
// set for now.
// TODO: add periph.io I2C drivers for the on-board sensors.
func sensorsFor(*config.Config) node.SensorReader {
	return sim.NewSensors(simSeed)
}

func serveConfig(ctx context.Context, addr, cfile string) error {
	mux := http.NewServeMux()
	mux.Handle("/api/config", config.ConfigHandler(cfile))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(sctx)
	}()

	slog.Info("Starting HTTP server", "address", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}
