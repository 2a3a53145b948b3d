package sync

import (
	"context"

	"github.com/merklebox/merklebox/internal/mbsdk"
	"github.com/merklebox/merklebox/internal/merkle"
)

// Remote is the server surface the sync pipeline depends on. The production
// implementation wraps the SDK; tests substitute an in-memory fake.
type Remote interface {
	UpdateTree(ctx context.Context, deviceID string, snap *merkle.Snapshot) (*mbsdk.DeviceTreeInfo, error)
	ListDevices(ctx context.Context) ([]*mbsdk.DeviceTreeInfo, error)
	DiffAgainst(ctx context.Context, deviceID string, snap *merkle.Snapshot) (*mbsdk.DiffResponse, error)
	UploadFile(ctx context.Context, params *mbsdk.UploadParams) (*mbsdk.UploadResponse, error)
	DeleteByHash(ctx context.Context, hash string) error
	DownloadEntry(ctx context.Context, entry *merkle.FileEntry) ([]byte, error)
}

type sdkRemote struct {
	sdk *mbsdk.SDK
}

// NewSDKRemote adapts the SDK to the Remote surface.
func NewSDKRemote(sdk *mbsdk.SDK) Remote {
	return &sdkRemote{sdk: sdk}
}

func (r *sdkRemote) UpdateTree(ctx context.Context, deviceID string, snap *merkle.Snapshot) (*mbsdk.DeviceTreeInfo, error) {
	return r.sdk.Tree.Update(ctx, deviceID, snap)
}

func (r *sdkRemote) ListDevices(ctx context.Context) ([]*mbsdk.DeviceTreeInfo, error) {
	return r.sdk.Tree.ListDevices(ctx)
}

func (r *sdkRemote) DiffAgainst(ctx context.Context, deviceID string, snap *merkle.Snapshot) (*mbsdk.DiffResponse, error) {
	return r.sdk.Tree.DiffAgainst(ctx, deviceID, snap)
}

func (r *sdkRemote) UploadFile(ctx context.Context, params *mbsdk.UploadParams) (*mbsdk.UploadResponse, error) {
	return r.sdk.Content.Upload(ctx, params)
}

func (r *sdkRemote) DeleteByHash(ctx context.Context, hash string) error {
	return r.sdk.Content.DeleteByHash(ctx, hash)
}

func (r *sdkRemote) DownloadEntry(ctx context.Context, entry *merkle.FileEntry) ([]byte, error) {
	return r.sdk.Content.DownloadEntry(ctx, entry)
}
