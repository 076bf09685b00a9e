package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/conneroisu/kreate/internal/config"
	kerrors "github.com/conneroisu/kreate/internal/errors"
	"github.com/conneroisu/kreate/internal/konfig"
	"github.com/conneroisu/kreate/internal/krypt"
	"github.com/conneroisu/kreate/internal/logging"
	"github.com/conneroisu/kreate/internal/registry"
	"github.com/conneroisu/kreate/internal/repo"
)

// session holds what one run of a command builds up: settings, logger,
// repos, the loaded konfig and, once kreated, the app.
type session struct {
	settings *config.Settings
	logger   logging.Logger
	warnings *kerrors.Collector
	repos    *repo.Manager
	konf     *konfig.Konfig
	app      *registry.App
}

// newSession loads settings and the konfig.
func newSession(ctx context.Context, stderr io.Writer) (*session, error) {
	settings, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	if err := settings.AddOverrides(overrides...); err != nil {
		return nil, fmt.Errorf("invalid --set: %w", err)
	}

	logCfg, err := settings.LoggerConfig()
	if err != nil {
		return nil, err
	}
	logCfg.Output = stderr
	logger := logging.NewLogger(logCfg)

	k, err := krypt.NewContext(settings.KeyFile, settings.Dummy)
	if err != nil {
		return nil, err
	}

	s := &session{
		settings: settings,
		logger:   logger,
		warnings: kerrors.NewCollector(),
	}
	s.repos = repo.NewManager(repo.Options{
		CacheRoot: settings.CacheDir,
		Krypt:     k,
		Logger:    logger,
		Warnings:  s.warnings,
	})

	s.konf, err = konfig.Load(ctx, konfig.LoadOptions{
		Path:      settings.Konfig,
		Overrides: settings.Overrides,
		Repos:     s.repos,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load konfig: %w", err)
	}
	return s, nil
}

// kreate creates and registers every komponent of the konfig.
func (s *session) kreate(ctx context.Context) error {
	app, err := registry.NewApp(s.konf, s.repos, registry.Options{
		OutputDir: s.settings.OutputDir,
		Logger:    s.logger,
		Warnings:  s.warnings,
	})
	if err != nil {
		return err
	}
	if err := app.KreateKomponents(ctx); err != nil {
		return err
	}
	s.app = app
	return nil
}

// build runs the whole pipeline: kreate, aktivate and write.
func (s *session) build(ctx context.Context) error {
	if err := s.kreate(ctx); err != nil {
		return err
	}
	if err := s.app.Aktivate(ctx); err != nil {
		return err
	}
	if err := s.app.Write(ctx); err != nil {
		return err
	}
	if !s.settings.KeepSecrets {
		return s.app.CleanupSecrets(ctx)
	}
	return nil
}

// reportWarnings prints the collected warnings, if any.
func (s *session) reportWarnings(w io.Writer) {
	if s.warnings.Count() == 0 {
		return
	}
	fmt.Fprint(w, s.warnings.Summary())
}
