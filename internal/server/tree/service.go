package tree

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/merklebox/merklebox/internal/merkle"
	"github.com/merklebox/merklebox/internal/server/content"
)

const diffURLTTL = 5 * time.Minute

// DiffResponse is the server's answer to a diff request: the directional diff
// with added/modified entries enriched with time-limited retrieval URLs, plus
// both sides' root hashes for the optimistic short-circuit.
type DiffResponse struct {
	Added          []*merkle.FileEntry `json:"added"`
	Modified       []*merkle.FileEntry `json:"modified"`
	Deleted        []*merkle.FileEntry `json:"deleted"`
	ServerRootHash *string             `json:"serverRootHash"`
	CallerRootHash *string             `json:"callerRootHash"`
}

// Service owns the authoritative per-device trees and runs the shared diff
// engine with the stored tree as the authoritative side.
type Service struct {
	store   *Store
	content *content.Service
}

func NewService(store *Store, contentSvc *content.Service) *Service {
	return &Service{
		store:   store,
		content: contentSvc,
	}
}

// Update replaces the stored tree for a device with the supplied snapshot.
func (s *Service) Update(ctx context.Context, user, deviceID string, snap *merkle.Snapshot) (*DeviceTreeInfo, error) {
	if err := snap.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", content.ErrInvalidRequest, err)
	}

	info, err := s.store.Replace(ctx, user, deviceID, snap)
	if err != nil {
		return nil, err
	}

	slog.Info("tree update", "user", user, "device", deviceID, "version", info.Version, "files", len(snap.Files))
	return info, nil
}

// Get returns the stored snapshot for a device.
func (s *Service) Get(ctx context.Context, user, deviceID string) (*merkle.Snapshot, *DeviceTreeInfo, error) {
	return s.store.Get(ctx, user, deviceID)
}

// List returns all of the user's device trees.
func (s *Service) List(ctx context.Context, user string) ([]*DeviceTreeInfo, error) {
	return s.store.List(ctx, user)
}

// Diff compares the stored device tree (authoritative side) against the
// caller's snapshot (proposing side). An unknown device is treated as an
// empty tree. Added and modified entries get fresh retrieval URLs for their
// blob content; deleted entries need none.
func (s *Service) Diff(ctx context.Context, user, deviceID string, caller *merkle.Snapshot) (*DiffResponse, error) {
	if err := caller.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", content.ErrInvalidRequest, err)
	}

	stored, err := s.store.Entries(ctx, user, deviceID)
	if err != nil {
		return nil, err
	}

	serverTree := merkle.FromSnapshot(&merkle.Snapshot{Files: stored})
	diff := merkle.Diff(serverTree.Entries(), caller.Files)

	resp := &DiffResponse{
		Added:          diff.Added,
		Modified:       diff.Modified,
		Deleted:        diff.Deleted,
		CallerRootHash: caller.RootHash,
	}
	if rh := serverTree.RootHash(); rh != merkle.EmptyRootHash {
		resp.ServerRootHash = &rh
	}

	for _, entry := range append(resp.Added, resp.Modified...) {
		s.attachRetrievalURL(ctx, user, entry)
	}

	return resp, nil
}

func (s *Service) attachRetrievalURL(ctx context.Context, user string, entry *merkle.FileEntry) {
	url, err := s.content.RetrievalURLByHash(ctx, user, entry.Hash, diffURLTTL)
	if err != nil {
		// entry stays without a resolvable reference; the client skips it and
		// the next cycle retries
		slog.Warn("diff presign failed", "user", user, "path", entry.Path, "error", err)
		return
	}
	entry.DownloadURL = &url.URL
}
