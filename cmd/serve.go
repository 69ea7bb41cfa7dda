package cmd

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"opshub.dev/opshub/internal/backup"
	"opshub.dev/opshub/internal/bandwidth"
	"opshub.dev/opshub/internal/blacklist"
	"opshub.dev/opshub/internal/brand"
	"opshub.dev/opshub/internal/clock"
	"opshub.dev/opshub/internal/config"
	"opshub.dev/opshub/internal/dockermon"
	"opshub.dev/opshub/internal/firewall"
	"opshub.dev/opshub/internal/history"
	"opshub.dev/opshub/internal/logging"
	"opshub.dev/opshub/internal/logrotate"
	"opshub.dev/opshub/internal/metrics"
	"opshub.dev/opshub/internal/netmon"
	"opshub.dev/opshub/internal/scheduler"
)

// RunServe runs the long-lived daemon: scheduled jobs, ping monitors,
// bandwidth and container watchers, and the metrics/health listener.
func RunServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	var common commonFlags
	common.register(fs)
	listen := fs.String("listen", "", "metrics/health listen address (default from config)")
	fs.Parse(args)

	cfg, err := common.loadConfig()
	if err != nil {
		return err
	}
	if *listen != "" {
		cfg.Server.Listen = *listen
	}

	logger := serveLogger(common, cfg)
	logger.Info("starting", "name", brand.Name, "version", brand.Version, "listen", cfg.Server.Listen)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := history.Open(logger, historyPath(cfg))
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer store.Close()

	reg := metrics.Get()
	startedAt := clock.Now()

	sched := scheduler.New(logger)
	sched.OnRun(func(taskID string, d time.Duration, err error) {
		reg.RecordTaskRun(taskID, d.Seconds(), err != nil)
	})

	registry := &scheduler.TaskRegistry{
		RunBackup: func(ctx context.Context, job config.Backup) error {
			_, err := backup.NewRunner(logger).Run(ctx, job)
			return err
		},
		RunRotation: func(ctx context.Context, rot config.Rotation) error {
			policy, err := logrotate.FromConfig(rot)
			if err != nil {
				return err
			}
			_, err = logrotate.New(logger).Run(ctx, policy)
			return err
		},
		RefreshFeeds: feedRefresher(logger, cfg, reg),
		PruneHistory: func(ctx context.Context) error {
			_, err := store.Prune(ctx, retentionFromConfig(cfg))
			return err
		},
	}
	if err := scheduler.RegisterAll(sched, cfg, registry); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	monitor := netmon.New(logger, cfg.Monitors, func(status netmon.TargetStatus) {
		reg.RecordTransition(status.Name, status.StateName)
	})
	if len(cfg.Monitors) > 0 {
		go monitor.Run(ctx)
	}

	var bwMon *bandwidth.Monitor
	if fetcher, err := bandwidth.NewFetcher(); err == nil {
		bwMon = bandwidth.NewMonitor(logger, fetcher, 5*time.Second)
		bwMon.Start()
		defer bwMon.Stop()
	} else {
		logger.Warn("bandwidth monitor disabled", "error", err)
	}

	docker, err := dockermon.New(logger, "")
	if err != nil {
		logger.Warn("container monitor disabled", "error", err)
		docker = nil
	}

	go publishLoop(ctx, reg, monitor, bwMon, docker, startedAt)

	server := &http.Server{
		Addr:    cfg.Server.Listen,
		Handler: serveMux(sched, monitor),
	}
	errc := make(chan error, 1)
	go func() {
		errc <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errc:
		return err
	}
}

// serveLogger builds the daemon logger: level from the config, plus
// the optional remote syslog sink.
func serveLogger(common commonFlags, cfg *config.Config) *logging.Logger {
	logCfg := logging.DefaultConfig()
	if common.verbose {
		logCfg.Level = logging.LevelDebug
	} else {
		switch strings.ToLower(cfg.Server.LogLevel) {
		case "debug":
			logCfg.Level = logging.LevelDebug
		case "warn":
			logCfg.Level = logging.LevelWarn
		case "error":
			logCfg.Level = logging.LevelError
		}
	}

	if cfg.Syslog != nil && cfg.Syslog.Enabled {
		sysCfg := logging.DefaultSyslogConfig()
		sysCfg.Enabled = true
		sysCfg.Host = cfg.Syslog.Host
		if cfg.Syslog.Port != 0 {
			sysCfg.Port = cfg.Syslog.Port
		}
		if cfg.Syslog.Protocol != "" {
			sysCfg.Protocol = cfg.Syslog.Protocol
		}
		if cfg.Syslog.Tag != "" {
			sysCfg.Tag = cfg.Syslog.Tag
		}
		if w, err := logging.NewSyslogWriter(sysCfg); err == nil {
			logCfg.Output = logging.MultiWriter(os.Stderr, w)
		}
	}

	logger := logging.New(logCfg)
	logging.SetDefault(logger)
	return logger
}

// feedRefresher builds the scheduled task that pulls threat feeds and
// pushes them into the nftables blocklist sets.
func feedRefresher(logger *logging.Logger, cfg *config.Config, reg *metrics.Registry) func(context.Context) error {
	if len(cfg.Feeds) == 0 {
		return nil
	}
	fetcher := blacklist.NewFetcher(logger)

	return func(ctx context.Context) error {
		feeds := fetcher.FetchAll(ctx, cfg.Feeds)
		for range feeds.Errors {
			reg.FeedErrors.WithLabelValues("fetch").Inc()
		}

		mgr, err := firewall.OpenBlocklist(logger, cfg.Blocklist.Table)
		if err != nil {
			// No nftables (non-linux or no privileges): fetching alone
			// still validates the feeds.
			logger.Warn("blocklist reload skipped", "error", err)
			return nil
		}
		v4, err := mgr.ReloadIPv4(cfg.Blocklist.Set, feeds.IPv4)
		if err != nil {
			return err
		}
		v6, err := mgr.ReloadIPv6(cfg.Blocklist.SetV6, feeds.IPv6)
		if err != nil {
			return err
		}

		reg.BlocklistEntries.WithLabelValues(cfg.Blocklist.Set).Set(float64(v4))
		reg.BlocklistEntries.WithLabelValues(cfg.Blocklist.SetV6).Set(float64(v6))
		reg.BlocklistLastUpdate.Set(float64(clock.Now().Unix()))
		return nil
	}
}

// publishLoop pushes monitor snapshots into the metrics registry.
func publishLoop(ctx context.Context, reg *metrics.Registry, monitor *netmon.Monitor, bwMon *bandwidth.Monitor, docker *dockermon.Watcher, startedAt time.Time) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		reg.Uptime.Set(clock.Since(startedAt).Seconds())

		for _, status := range monitor.Snapshot() {
			reg.RecordTargetState(status.Name, status.Target,
				status.State == netmon.StateUp, status.LastRTT.Seconds())
		}

		if bwMon != nil {
			for _, rate := range bwMon.Current() {
				reg.RecordBandwidth(rate.Iface, rate.RxBytesPS, rate.TxBytesPS, rate.RxErrors+rate.TxErrors)
			}
		}

		if docker != nil {
			if summary, err := docker.Check(ctx); err == nil {
				reg.ContainersRunning.Set(float64(summary.Running))
				reg.ContainersUnhealthy.Set(float64(summary.Unhealthy))
			}
		}
	}
}

// serveMux wires the daemon HTTP surface.
func serveMux(sched *scheduler.Scheduler, monitor *netmon.Monitor) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"tasks":    sched.Status(),
			"monitors": monitor.Snapshot(),
		})
	})

	mux.HandleFunc("/logs", func(w http.ResponseWriter, r *http.Request) {
		n := 50
		if s := r.URL.Query().Get("n"); s != "" {
			if v, err := strconv.Atoi(s); err == nil && v > 0 {
				n = v
			}
		}
		buffer := logging.GetAppLogBuffer()
		var entries []logging.AppLogEntry
		if source := r.URL.Query().Get("source"); source != "" {
			entries = buffer.GetBySource(source, n)
		} else {
			entries = buffer.GetLast(n)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(entries)
	})

	return mux
}
