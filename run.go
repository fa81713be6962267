package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/gdpoller-go/internal/config"
	"github.com/tonimelisma/gdpoller-go/internal/dispatch"
	"github.com/tonimelisma/gdpoller-go/internal/gdrive"
	"github.com/tonimelisma/gdpoller-go/internal/httpc"
	"github.com/tonimelisma/gdpoller-go/internal/metrics"
	"github.com/tonimelisma/gdpoller-go/internal/poller"
)

// errSettingsChanged unwinds one run so the daemon can rebuild its pollers
// from the re-read settings file.
var errSettingsChanged = errors.New("settings file changed")

// runDaemon runs the poller set until signalled, restarting it whenever the
// settings file changes on disk. A reload that fails to parse keeps the
// previous settings and restarts from those.
func runDaemon(ctx context.Context, path string) error {
	path, err := config.Resolve(path)
	if err != nil {
		return err
	}

	settings, err := config.Load(path)
	if err != nil {
		return err
	}

	logger := buildLogger(settings)
	ctx = shutdownContext(ctx, logger)

	if flagPIDFile != "" {
		cleanup, err := writePIDFile(flagPIDFile)
		if err != nil {
			return err
		}
		defer cleanup()
	}

	for {
		err := runWithSettings(ctx, settings, path, logger)
		if !errors.Is(err, errSettingsChanged) {
			return err
		}

		logger.Info("settings changed, restarting pollers", slog.String("path", path))

		reloaded, loadErr := config.Load(path)
		if loadErr != nil {
			logger.Error("settings reload failed, keeping previous configuration",
				slog.String("error", loadErr.Error()),
			)

			continue
		}

		settings = reloaded
		logger = buildLogger(settings)
	}
}

// runWithSettings materialises one poller set from the settings and drives
// it until cancellation or a settings-file change.
func runWithSettings(ctx context.Context, settings *config.Settings, path string, logger *slog.Logger) error {
	m := metrics.New()

	drive := settings.GoogleDrive

	client := gdrive.NewClient(ctx, gdrive.Token{
		ClientID:     drive.Token.ClientID,
		ClientSecret: drive.Token.ClientSecret,
		RefreshToken: drive.Token.RefreshToken,
		AccessToken:  drive.Token.AccessToken,
	}, drive.Scopes, logger)

	resolver := gdrive.NewResolver(client, gdrive.CacheConfig{
		Enable:  drive.CacheEnable,
		MaxSize: drive.CacheSize,
		TTL:     drive.CacheTTL(),
	}, logger)

	session := httpc.NewSession(nil, logger)

	pollers, err := buildPollers(settings, client, resolver, session, m, logger)
	if err != nil {
		return err
	}

	taskCheck := time.Duration(*settings.TaskCheckInterval) * time.Second
	supervisor := poller.NewSupervisor(pollers, taskCheck, logger)

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return supervisor.Run(ctx)
	})

	if settings.Metrics.Address != "" {
		group.Go(func() error {
			return m.Serve(ctx, settings.Metrics.Address, logger)
		})
	}

	group.Go(func() error {
		return watchSettings(ctx, path, logger)
	})

	return group.Wait()
}

func buildPollers(settings *config.Settings, client *gdrive.Client, resolver *gdrive.Resolver,
	session *httpc.Session, m *metrics.Metrics, logger *slog.Logger) ([]*poller.Poller, error) {
	var pollers []*poller.Poller

	for _, resolved := range settings.Materialise() {
		targets := make([]poller.Target, 0, len(resolved.Targets))

		for _, raw := range resolved.Targets {
			target, err := poller.ParseTarget(raw)
			if err != nil {
				return nil, fmt.Errorf("poller %s: %w", resolved.Name, err)
			}

			targets = append(targets, target)
		}

		dispatchers := make([]dispatch.Dispatcher, 0, len(resolved.Dispatchers))

		for _, cfg := range resolved.Dispatchers {
			d, err := dispatch.New(cfg, dispatch.Deps{Session: session, Logger: logger})
			if err != nil {
				return nil, fmt.Errorf("poller %s: %w", resolved.Name, err)
			}

			dispatchers = append(dispatchers, d)
		}

		p, err := poller.New(poller.Options{
			Name:              resolved.Name,
			Targets:           targets,
			Dispatchers:       dispatchers,
			PollingInterval:   resolved.PollingInterval,
			PollingDelay:      resolved.PollingDelay,
			DispatchInterval:  resolved.DispatchInterval,
			TaskCheckInterval: resolved.TaskCheckInterval,
			PageSize:          resolved.PageSize,
			IgnoreFolder:      resolved.IgnoreFolder,
			Actions:           resolved.Actions,
			Patterns:          resolved.Patterns,
			IgnorePatterns:    resolved.IgnorePatterns,
			Querier:           client,
			Resolver:          resolver,
			Metrics:           m,
			Logger:            logger,
		})
		if err != nil {
			return nil, err
		}

		pollers = append(pollers, p)
	}

	return pollers, nil
}
