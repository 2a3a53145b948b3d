package blob

import "time"

type UploadRequest struct {
	Path     string `form:"path" binding:"required"`
	MIMEType string `form:"mimeType"`
	LocalRef string `form:"localRef"`
}

type DownloadRequest struct {
	Hash       string `json:"hash"`
	FileID     string `json:"fileId"`
	TTLSeconds int    `json:"ttlSeconds"`
}

type DownloadResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type DeleteRequest struct {
	Hash string `json:"hash" binding:"required"`
}
