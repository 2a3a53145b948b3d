package mbsdk

import (
	"context"
	"fmt"
	"strings"

	"github.com/imroc/req/v3"

	"github.com/merklebox/merklebox/internal/merkle"
)

const (
	v1ContentUpload   = "/api/v1/content/upload"
	v1ContentDownload = "/api/v1/content/download"
	v1ContentDelete   = "/api/v1/content/delete"
	v1ContentFetch    = "/api/v1/content/fetch/{hash}"
)

type ContentAPI struct {
	client *req.Client
}

func newContentAPI(client *req.Client) *ContentAPI {
	return &ContentAPI{client: client}
}

// Upload stores a local file's content under its hash.
func (c *ContentAPI) Upload(ctx context.Context, params *UploadParams) (resp *UploadResponse, err error) {
	res, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("path", params.Path).
		SetQueryParam("mimeType", params.MIMEType).
		SetQueryParam("localRef", params.LocalRef).
		SetRetryCount(0).
		SetFile("file", params.FilePath).
		SetSuccessResult(&resp).
		Put(v1ContentUpload)

	if err := handleAPIError(res, err, "content upload"); err != nil {
		return nil, err
	}
	return resp, nil
}

// RetrievalURL asks the server for a time-limited download URL by hash.
func (c *ContentAPI) RetrievalURL(ctx context.Context, hash string, ttlSeconds int) (resp *DownloadResponse, err error) {
	res, err := c.client.R().
		SetContext(ctx).
		SetBody(&DownloadParams{Hash: hash, TTLSeconds: ttlSeconds}).
		SetSuccessResult(&resp).
		Post(v1ContentDownload)

	if err := handleAPIError(res, err, "content download url"); err != nil {
		return nil, err
	}
	return resp, nil
}

// DeleteByHash removes stored content by its hash.
func (c *ContentAPI) DeleteByHash(ctx context.Context, hash string) error {
	res, err := c.client.R().
		SetContext(ctx).
		SetBody(&DeleteParams{Hash: hash}).
		Post(v1ContentDelete)

	return handleAPIError(res, err, "content delete")
}

// DownloadEntry fetches the bytes for a diff entry. Presigned URLs go direct
// to the object store; the dev profile's mem:// references are resolved
// through the server's fetch endpoint.
func (c *ContentAPI) DownloadEntry(ctx context.Context, entry *merkle.FileEntry) ([]byte, error) {
	if entry.DownloadURL == nil || *entry.DownloadURL == "" {
		return nil, fmt.Errorf("entry %s has no resolvable download reference", entry.Path)
	}

	url := *entry.DownloadURL
	if strings.HasPrefix(url, "mem://") {
		return c.fetchByHash(ctx, entry.Hash)
	}

	res, err := c.client.R().
		SetContext(ctx).
		Get(url)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", entry.Path, err)
	}
	if res.IsErrorState() {
		return nil, fmt.Errorf("download %s: %s", entry.Path, res.Status)
	}
	return res.Bytes(), nil
}

func (c *ContentAPI) fetchByHash(ctx context.Context, hash string) ([]byte, error) {
	res, err := c.client.R().
		SetContext(ctx).
		SetPathParam("hash", hash).
		Get(v1ContentFetch)

	if err := handleAPIError(res, err, "content fetch"); err != nil {
		return nil, err
	}
	return res.Bytes(), nil
}
