package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	flag "github.com/spf13/pflag"

	"shadowcal/internal/clock"
	"shadowcal/internal/config"
	"shadowcal/internal/geocode"
	appLog "shadowcal/internal/log"
	"shadowcal/internal/shift"
	"shadowcal/internal/store"
	"shadowcal/internal/transit"
	"shadowcal/internal/web"
)

const version = "0.1.0"

type flagConfig struct {
	configPath    string
	listen        string
	preflightPath string
	debug         bool
}

func main() {
	flags := parseFlags()
	if err := run(flags); err != nil {
		appLog.Error("shadowcal failed", err)
		os.Exit(1)
	}
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/shadowcal/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.preflightPath, "preflight", "", "Evaluate the preflight request in this JSON file, print the result and exit")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")

	flag.Parse()
	return cfg
}

func run(flags flagConfig) error {
	conf, err := config.Load(flags.configPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", flags.configPath, err)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	applyLogLevel(conf, flags.debug)

	appLog.Info("shadowcal starting",
		"version", version,
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"week_start", conf.WeekStart,
		"transit_provider", conf.Transit.Endpoint != "",
		"geocoder", conf.Geocode.Endpoint != "",
		"storage", conf.Storage.Path,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			appLog.Info("signal received, shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	lib := shift.NewLibrary()
	if err := applyPatterns(lib, conf); err != nil {
		return err
	}

	estimator, err := newEstimator(conf)
	if err != nil {
		return err
	}

	deps := web.Deps{
		Estimator: estimator,
		Library:   lib,
		Clock:     clock.Real{},
	}
	if conf.Geocode.Endpoint != "" {
		g, err := geocode.NewClient(geocode.Config{
			Endpoint:   conf.Geocode.Endpoint,
			UserAgent:  conf.Geocode.UserAgent,
			RatePerSec: conf.Geocode.RatePerSec,
		})
		if err != nil {
			return err
		}
		deps.Geocoder = g
	}

	st, err := store.Open(ctx, store.Config{Path: conf.Storage.Path, BusyTimeout: conf.Storage.BusyTimeout})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	deps.Store = st

	if flags.preflightPath != "" {
		return runPreflightOnce(ctx, conf, deps, flags.preflightPath)
	}

	c := cron.New(cron.WithLocation(conf.Location()))
	if _, err := c.AddFunc(conf.CachePrune, func() {
		n := estimator.Cache().Prune()
		appLog.Info("transit cache pruned", "removed", n, "remaining", estimator.Cache().Len())
	}); err != nil {
		return fmt.Errorf("cache_prune schedule %q: %w", conf.CachePrune, err)
	}
	c.Start()
	defer c.Stop()

	go func() {
		_ = config.Watch(ctx, flags.configPath, func(next *config.Config) {
			applyLogLevel(next, flags.debug)
			if err := applyPatterns(lib, next); err != nil {
				appLog.Warn("shift_patterns rejected", "error", err.Error())
			}
		})
	}()

	return web.StartServer(ctx, conf, deps)
}

func applyLogLevel(conf *config.Config, debug bool) {
	if debug {
		appLog.SetLevel(appLog.LevelDebug)
		return
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))
}

func applyPatterns(lib *shift.Library, conf *config.Config) error {
	patterns, err := conf.Patterns()
	if err != nil {
		return err
	}
	lib.Replace(patterns)
	if len(patterns) > 0 {
		appLog.Info("shift patterns applied", "custom_types", len(patterns), "types", len(lib.Types()))
	}
	return nil
}

func newEstimator(conf *config.Config) (*transit.Estimator, error) {
	tc := conf.Transit
	cfg := transit.Config{
		Cache:           transit.NewCache(tc.CacheTTL, nil),
		Timeout:         tc.Timeout,
		Fallback:        transit.Fallback{SpeedMPH: tc.AverageSpeedMPH, OverheadMinutes: tc.OverheadMinutes},
		BreakerTrip:     tc.BreakerTrip,
		BreakerCooldown: tc.BreakerCooldown,
	}
	if tc.Endpoint != "" {
		r, err := transit.NewHTTPRouter(transit.HTTPRouterConfig{
			Endpoint:   tc.Endpoint,
			APIKey:     tc.APIKey,
			RatePerSec: tc.RatePerSec,
		})
		if err != nil {
			return nil, err
		}
		cfg.Router = r
	} else {
		appLog.Warn("no transit endpoint configured; all estimates use the offline fallback")
	}
	return transit.NewEstimator(cfg), nil
}

func runPreflightOnce(ctx context.Context, conf *config.Config, deps web.Deps, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var in web.PreflightRequest
	if err := json.NewDecoder(f).Decode(&in); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}

	out, _, err := web.NewServer(conf, deps).Preflight(ctx, in)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
