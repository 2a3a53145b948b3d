package client

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rjeczalik/notify"

	"github.com/merklebox/merklebox/internal/client/config"
	"github.com/merklebox/merklebox/internal/client/sync"
	"github.com/merklebox/merklebox/internal/client/workspace"
	"github.com/merklebox/merklebox/internal/mbsdk"
	"github.com/merklebox/merklebox/internal/merkle"
)

// Client is the sync daemon: it owns the workspace, the server connection
// and the local sync machinery, and wires watcher events into the change
// detector.
type Client struct {
	config    *config.Config
	workspace *workspace.Workspace
	sdk       *mbsdk.SDK

	tree     *merkle.Tree
	watcher  *sync.FileWatcher
	detector *sync.ChangeDetector
	engine   *sync.SyncEngine
	store    *sync.TreeStore
}

func New(cfg *config.Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	ws, err := workspace.NewWorkspace(cfg.DataDir, cfg.User)
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}

	sdk, err := mbsdk.New(cfg.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create sdk: %w", err)
	}

	return &Client{
		config:    cfg,
		workspace: ws,
		sdk:       sdk,
		watcher:   sync.NewFileWatcher(ws.Root),
	}, nil
}

// Start runs the daemon until the context is cancelled.
func (c *Client) Start(ctx context.Context) error {
	slog.Info("merklebox client start",
		"datadir", c.config.DataDir,
		"user", c.config.User,
		"device", c.config.DeviceID,
		"server", c.config.ServerURL)

	if err := c.workspace.Setup(); err != nil {
		return fmt.Errorf("failed to setup workspace: %w", err)
	}
	defer c.workspace.Unlock()

	if err := c.sdk.Login(c.config.User, c.config.DeviceID); err != nil {
		return fmt.Errorf("failed to login: %w", err)
	}

	if err := c.buildSyncStack(); err != nil {
		return err
	}
	defer c.store.Close()

	c.detector.Start(ctx)

	// pick up edits made while the daemon was down before watching for new
	// ones
	if err := c.detector.ScanWorkspace(ctx); err != nil {
		slog.Error("initial workspace scan", "error", err)
	}

	if err := c.watcher.Start(ctx); err != nil {
		return fmt.Errorf("failed to start file watcher: %w", err)
	}
	defer c.watcher.Stop()

	go c.pumpEvents(ctx)

	c.engine.Start(ctx)

	<-ctx.Done()
	slog.Info("received interrupt signal, stopping client")

	c.engine.Stop()
	c.detector.Stop()
	c.sdk.Close()
	slog.Info("merklebox client stop")
	return nil
}

func (c *Client) buildSyncStack() error {
	store, err := sync.NewTreeStore(c.workspace.TreeDBPath)
	if err != nil {
		return fmt.Errorf("failed to open tree store: %w", err)
	}
	c.store = store

	entries, err := store.Load()
	if err != nil {
		store.Close()
		return fmt.Errorf("failed to load tree: %w", err)
	}
	tree := merkle.NewTree()
	for _, e := range entries {
		tree.Upsert(e)
	}
	c.tree = tree
	slog.Debug("tree loaded", "entries", tree.Len(), "root", tree.RootHash())

	remote := sync.NewSDKRemote(c.sdk)
	guard := sync.NewDownloadGuard(sync.DefaultRecentDownloadTTL)
	ignore := sync.NewIgnoreList()

	c.detector = sync.NewChangeDetector(
		c.workspace.Root, c.config.DeviceID, tree, store, remote, guard, ignore)
	c.engine = sync.NewSyncEngine(
		c.workspace.Root, c.config.DeviceID, tree, store, remote, guard, ignore, c.detector,
		sync.WithSyncInterval(c.config.SyncInterval()))
	return nil
}

// pumpEvents forwards watcher events to the change detector until the
// context is cancelled.
func (c *Client) pumpEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-c.watcher.Events():
			if !ok {
				return
			}
			c.detector.HandleEvent(ev.Path(), mapEventOp(ev.Event()))
		}
	}
}

func mapEventOp(ev notify.Event) sync.EventOp {
	switch {
	case ev&(notify.Remove|notify.Rename) != 0:
		return sync.OpDelete
	case ev&notify.Create != 0:
		return sync.OpCreate
	default:
		return sync.OpModify
	}
}
