package mbsdk

import (
	"context"

	"github.com/imroc/req/v3"

	"github.com/merklebox/merklebox/internal/merkle"
)

const (
	v1TreeList   = "/api/v1/tree"
	v1TreeDevice = "/api/v1/tree/{deviceId}"
	v1TreeDiff   = "/api/v1/tree/{deviceId}/diff"
)

type TreeAPI struct {
	client *req.Client
}

func newTreeAPI(client *req.Client) *TreeAPI {
	return &TreeAPI{client: client}
}

// Update replaces the server's tree for this device with the snapshot.
func (t *TreeAPI) Update(ctx context.Context, deviceID string, snap *merkle.Snapshot) (resp *DeviceTreeInfo, err error) {
	res, err := t.client.R().
		SetContext(ctx).
		SetPathParam("deviceId", deviceID).
		SetBody(snap).
		SetSuccessResult(&resp).
		Put(v1TreeDevice)

	if err := handleAPIError(res, err, "tree update"); err != nil {
		return nil, err
	}
	return resp, nil
}

// Get fetches the stored snapshot for a device.
func (t *TreeAPI) Get(ctx context.Context, deviceID string) (resp *merkle.Snapshot, err error) {
	res, err := t.client.R().
		SetContext(ctx).
		SetPathParam("deviceId", deviceID).
		SetSuccessResult(&resp).
		Get(v1TreeDevice)

	if err := handleAPIError(res, err, "tree get"); err != nil {
		return nil, err
	}
	return resp, nil
}

// DiffAgainst asks the server to diff its stored tree for deviceID
// (authoritative side) against the supplied local snapshot.
func (t *TreeAPI) DiffAgainst(ctx context.Context, deviceID string, snap *merkle.Snapshot) (resp *DiffResponse, err error) {
	res, err := t.client.R().
		SetContext(ctx).
		SetPathParam("deviceId", deviceID).
		SetBody(snap).
		SetSuccessResult(&resp).
		Post(v1TreeDiff)

	if err := handleAPIError(res, err, "tree diff"); err != nil {
		return nil, err
	}
	return resp, nil
}

// ListDevices returns all of the user's devices known to the server.
func (t *TreeAPI) ListDevices(ctx context.Context) ([]*DeviceTreeInfo, error) {
	var resp DeviceListResponse
	res, err := t.client.R().
		SetContext(ctx).
		SetSuccessResult(&resp).
		Get(v1TreeList)

	if err := handleAPIError(res, err, "tree list"); err != nil {
		return nil, err
	}
	return resp.Devices, nil
}
