// Package bridge assembles the persistent pieces every panel_bridge binary
// shares: configuration, the job database and the serial navigator.
package bridge

import (
	"context"
	"fmt"

	"github.com/NotCoffee418/panel_bridge/pkg/config"
	"github.com/NotCoffee418/panel_bridge/pkg/jobdb"
	"github.com/NotCoffee418/panel_bridge/pkg/logger"
	"github.com/NotCoffee418/panel_bridge/pkg/pathing"
	"github.com/NotCoffee418/panel_bridge/pkg/port_link"
	"github.com/NotCoffee418/panel_bridge/pkg/terminal"
)

type Paths struct {
	Config   string
	Catalog  string
	Database string
}

// DefaultPaths resolves the standard locations, creating their directories.
func DefaultPaths() (Paths, error) {
	if err := pathing.EnsureDirs(); err != nil {
		return Paths{}, fmt.Errorf("failed to create bridge directories: %w", err)
	}
	return Paths{
		Config:   pathing.GetBridgeConfigPath(),
		Catalog:  pathing.GetActionCatalogPath(),
		Database: pathing.GetJobDbPath(),
	}, nil
}

type Bridge struct {
	Config    *config.BridgeConfig
	Store     *jobdb.Store
	Link      *port_link.PortLink
	Navigator *terminal.Navigator
}

// Open loads configuration, migrates the database, syncs the catalog into it
// and prepares the serial link. The port itself is opened on first use.
func Open(ctx context.Context, paths Paths, log logger.Logger, linkOpts ...port_link.LinkOption) (*Bridge, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	cfg, err := config.LoadBridgeConfig(paths.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to load bridge config: %w", err)
	}
	log.SetLevel(logger.ParseLevel(cfg.LogLevel))

	catalog, err := config.LoadActionCatalog(paths.Catalog)
	if err != nil {
		return nil, fmt.Errorf("failed to load action catalog: %w", err)
	}

	options, err := port_link.OpenOptionsFromConfig(cfg.Serial)
	if err != nil {
		return nil, err
	}

	store, err := jobdb.Open(paths.Database, log.With("component", "jobdb"))
	if err != nil {
		return nil, err
	}

	synced, err := store.SyncActions(ctx, catalog.Actions)
	if err != nil {
		store.Close()
		return nil, err
	}
	for i := range catalog.Points {
		if err := store.UpsertPoint(ctx, &catalog.Points[i]); err != nil {
			store.Close()
			return nil, err
		}
	}
	log.Info("catalog synced", "actions", synced, "points", len(catalog.Points))

	opts := append([]port_link.LinkOption{
		port_link.WithWriteTimeout(cfg.Serial.WriteTimeout()),
		port_link.WithLogger(log.With("component", "port_link")),
	}, linkOpts...)
	link := port_link.NewPortLink(options, opts...)

	nav := terminal.NewNavigator(link, terminal.SettingsFromConfig(cfg.Terminal), log.With("component", "terminal"))

	return &Bridge{
		Config:    cfg,
		Store:     store,
		Link:      link,
		Navigator: nav,
	}, nil
}

func (b *Bridge) Close() error {
	linkErr := b.Link.Close()
	if err := b.Store.Close(); err != nil {
		return err
	}
	return linkErr
}
