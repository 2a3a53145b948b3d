package mbsdk

import (
	"time"

	"github.com/imroc/req/v3"

	"github.com/merklebox/merklebox/internal/version"
)

const (
	HeaderUser   = "X-MBox-User"
	HeaderDevice = "X-MBox-Device"
)

// SDK is the typed client for the MerkleBox API.
type SDK struct {
	client  *req.Client
	baseURL string
	Tree    *TreeAPI
	Content *ContentAPI
}

// New creates a new SDK client for the given server.
func New(baseURL string) (*SDK, error) {
	if baseURL == "" {
		return nil, ErrNoServerURL
	}

	client := req.C().
		SetBaseURL(baseURL).
		SetCommonRetryCount(3).
		SetCommonRetryBackoffInterval(1*time.Second, 5*time.Second).
		SetUserAgent("MerkleBox/" + version.Version).
		SetCommonErrorResult(&APIError{})

	return &SDK{
		client:  client,
		baseURL: baseURL,
		Tree:    newTreeAPI(client),
		Content: newContentAPI(client),
	}, nil
}

// Login sets the resolved user identity and device id on all API calls. The
// identity is issued by the out-of-scope auth layer; the SDK only forwards
// it.
func (s *SDK) Login(user, deviceID string) error {
	if user == "" {
		return ErrNoUser
	}
	s.client.SetCommonHeader(HeaderUser, user)
	s.client.SetCommonHeader(HeaderDevice, deviceID)
	return nil
}

// Close releases the underlying transport.
func (s *SDK) Close() {
	s.client.CloseIdleConnections()
}
