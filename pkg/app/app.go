// Package app wires the stasis object graph from configuration: registry,
// slot manager, dump store, launcher, reconciler, and journal. CLI commands
// and the serve daemon build the same graph, so it lives in one place.
package app

import (
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/stasishq/stasis/pkg/config"
	"github.com/stasishq/stasis/pkg/dotdir"
	"github.com/stasishq/stasis/pkg/dump"
	"github.com/stasishq/stasis/pkg/journal"
	"github.com/stasishq/stasis/pkg/launch"
	"github.com/stasishq/stasis/pkg/reconcile"
	"github.com/stasishq/stasis/pkg/session"
	"github.com/stasishq/stasis/pkg/slot"
)

const journalFileName = "journal.sqlite"

// App is the assembled stasis runtime.
type App struct {
	Config   *config.Config
	Dir      string
	DumpsDir string
	LogsDir  string

	Registry   *session.Registry
	Slots      *slot.Manager
	Store      *dump.Store
	Launcher   *launch.Launcher
	Reconciler *reconcile.Reconciler

	// Journal is nil when journaling is disabled in the config.
	Journal *journal.Journal

	Logger *zap.Logger
}

// New builds the runtime from the resolved configuration. configDir is the
// optional --config-dir override.
func New(configDir string, logger *zap.Logger) (*App, error) {
	v, err := config.InitViper(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return NewFromConfig(config.ConfigFromViper(v), configDir, logger)
}

// NewFromConfig builds the runtime from an already-materialized config.
// Commands that bind CLI flags into viper use this after materializing.
func NewFromConfig(cfg *config.Config, configDir string, logger *zap.Logger) (*App, error) {
	ddm := dotdir.NewManager()
	dir, err := ddm.Target(configDir)
	if err != nil {
		return nil, err
	}

	dumpsDir := cfg.Dumps.Dir
	if dumpsDir == "" {
		dumpsDir, err = ddm.DumpsDir(configDir)
		if err != nil {
			return nil, err
		}
	}

	logsDir, err := ddm.LogsDir(configDir)
	if err != nil {
		return nil, err
	}

	registry, err := session.NewRegistry(configDir)
	if err != nil {
		return nil, err
	}

	slots := slot.NewManager(slot.Config{
		Host:          cfg.Server.Host,
		HealthTimeout: time.Duration(cfg.HTTP.HealthTimeoutMS) * time.Millisecond,
		ActionTimeout: time.Duration(cfg.HTTP.ActionTimeoutMS) * time.Millisecond,
	}, registry, logger)

	a := &App{
		Config:   cfg,
		Dir:      dir,
		DumpsDir: dumpsDir,
		LogsDir:  logsDir,
		Registry: registry,
		Slots:    slots,
		Logger:   logger,
	}

	if cfg.Journal.Enabled {
		journalPath := cfg.Journal.Path
		if journalPath == "" {
			journalPath = filepath.Join(dir, journalFileName)
		}
		j, err := journal.Open(journalPath, logger)
		if err != nil {
			return nil, err
		}
		a.Journal = j
		slots.SetRecorder(j)
	}

	a.Store = dump.NewStore(dumpsDir, slots, logger)

	a.Launcher = launch.NewLauncher(launch.Config{
		Binary:       cfg.Server.Binary,
		Host:         cfg.Server.Host,
		ModelsDir:    cfg.Models.Dir,
		DumpsDir:     dumpsDir,
		LogsDir:      logsDir,
		StartTimeout: time.Duration(cfg.Server.StartTimeoutMS) * time.Millisecond,
	}, registry, logger)

	a.Reconciler = reconcile.NewReconciler(a.Store, a.Launcher, slots, logger)

	return a, nil
}

// Close releases resources held by the runtime.
func (a *App) Close() error {
	if a.Journal != nil {
		return a.Journal.Close()
	}
	return nil
}
