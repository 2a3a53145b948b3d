package workspace

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/merklebox/merklebox/internal/utils"
)

const (
	metadataDir = ".merklebox"
	logsDir     = "logs"
	lockFile    = "merklebox.lock"
	treeDBFile  = "tree.db"
)

var ErrWorkspaceLocked = errors.New("workspace locked by another process")

// Workspace is the synced directory tree for one user on one device. Files
// live directly under Root; daemon state lives in a hidden metadata dir the
// sync engine never tracks.
type Workspace struct {
	Owner       string
	Root        string
	MetadataDir string
	LogsDir     string
	TreeDBPath  string

	flock *flock.Flock
}

func NewWorkspace(rootDir string, user string) (*Workspace, error) {
	root, err := utils.ResolvePath(rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", rootDir, err)
	}

	metaDir := filepath.Join(root, metadataDir)

	return &Workspace{
		Owner:       user,
		Root:        root,
		MetadataDir: metaDir,
		LogsDir:     filepath.Join(root, logsDir),
		TreeDBPath:  filepath.Join(metaDir, treeDBFile),
		flock:       flock.New(filepath.Join(metaDir, lockFile)),
	}, nil
}

// Lock takes the workspace lock so a second daemon instance cannot sync the
// same directory concurrently.
func (w *Workspace) Lock() error {
	if err := utils.EnsureDir(w.MetadataDir); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", w.MetadataDir, err)
	}

	locked, err := w.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock workspace: %w", err)
	}
	if !locked {
		return ErrWorkspaceLocked
	}

	return nil
}

func (w *Workspace) Unlock() error {
	if !w.flock.Locked() {
		return nil
	}
	return w.flock.Unlock()
}

// Setup locks the workspace and creates its directory layout.
func (w *Workspace) Setup() error {
	if err := w.Lock(); err != nil {
		return err
	}

	slog.Info("workspace", "root", w.Root, "owner", w.Owner)

	for _, dir := range []string{w.Root, w.MetadataDir, w.LogsDir} {
		if err := utils.EnsureDir(dir); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
