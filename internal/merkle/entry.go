package merkle

import "time"

// FileEntry is one tracked file in a device tree. The relative path is the
// unique key within a tree; Hash is the sha256 hex digest of the file's full
// byte content.
type FileEntry struct {
	Filename     string    `json:"filename"`
	Path         string    `json:"file_path"`
	LocalURL     *string   `json:"local_url"`
	BlobRef      *string   `json:"blob_ref"`
	Hash         string    `json:"hash"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"timestamp"`
	MIMEType     *string   `json:"mime_type"`

	// DownloadURL is a time-limited retrieval reference issued by the server
	// when the entry is returned in a diff. Never part of a stored snapshot.
	DownloadURL *string `json:"download_url,omitempty"`
}

// Clone returns a deep copy of the entry.
func (e *FileEntry) Clone() *FileEntry {
	if e == nil {
		return nil
	}
	cp := *e
	if e.LocalURL != nil {
		v := *e.LocalURL
		cp.LocalURL = &v
	}
	if e.BlobRef != nil {
		v := *e.BlobRef
		cp.BlobRef = &v
	}
	if e.MIMEType != nil {
		v := *e.MIMEType
		cp.MIMEType = &v
	}
	if e.DownloadURL != nil {
		v := *e.DownloadURL
		cp.DownloadURL = &v
	}
	return &cp
}
