package api

const (
	// Generic request/server errors
	CodeInvalidRequest = "E_INVALID_REQUEST" // bad or invalid request
	CodeInternalError  = "E_INTERNAL_ERROR"  // internal server error
	CodeAccessDenied   = "E_ACCESS_DENIED"   // access denied

	// Tree errors
	CodeTreeNotFound    = "E_TREE_NOT_FOUND"    // the specified device tree could not be found.
	CodeTreeInvalidSnap = "E_TREE_INVALID_SNAP" // the supplied tree snapshot is malformed.

	// Content errors
	CodeContentNotFound     = "E_CONTENT_NOT_FOUND"      // no stored content for the given hash or id.
	CodeContentConflict     = "E_CONTENT_CONFLICT"       // duplicate-creation race surfaced by the storage layer.
	CodeContentUploadFailed = "E_CONTENT_UPLOAD_FAILED"  // a failure during the operation to store content.
	CodeContentDeleteFailed = "E_CONTENT_DELETE_FAILED"  // a failure during the operation to delete content.
	CodePresignFailed       = "E_CONTENT_PRESIGN_FAILED" // a failure issuing a retrieval URL.
)
