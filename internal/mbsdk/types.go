package mbsdk

import (
	"time"

	"github.com/merklebox/merklebox/internal/merkle"
)

type DeviceTreeInfo struct {
	DeviceID  string    `json:"deviceId"`
	RootHash  *string   `json:"rootHash"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type DeviceListResponse struct {
	Devices []*DeviceTreeInfo `json:"devices"`
}

type DiffResponse struct {
	Added          []*merkle.FileEntry `json:"added"`
	Modified       []*merkle.FileEntry `json:"modified"`
	Deleted        []*merkle.FileEntry `json:"deleted"`
	ServerRootHash *string             `json:"serverRootHash"`
	CallerRootHash *string             `json:"callerRootHash"`
}

type UploadParams struct {
	Path     string
	FilePath string
	MIMEType string
	LocalRef string
}

type UploadResponse struct {
	BlobRef      string `json:"blobRef"`
	Hash         string `json:"hash"`
	Size         int64  `json:"size"`
	RetrievalURL string `json:"retrievalUrl"`
	Deduplicated bool   `json:"deduplicated"`
}

type DownloadParams struct {
	Hash       string `json:"hash"`
	TTLSeconds int    `json:"ttlSeconds"`
}

type DownloadResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type DeleteParams struct {
	Hash string `json:"hash"`
}
