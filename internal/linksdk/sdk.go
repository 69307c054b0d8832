package linksdk

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/imroc/req/v3"

	"github.com/vaultlink/vaultlink/internal/version"
)

const (
	HeaderClientVersion = "X-VaultLink-Version"

	v1Root       = "/"
	v1Status     = "/v1/status"
	v1SyncNow    = "/v1/sync/now"
	v1SyncPush   = "/v1/sync/push"
	v1SyncFile   = "/v1/sync/file"
	v1SyncStatus = "/v1/sync/status"
	v1History    = "/v1/history"
	v1Settings   = "/v1/settings"
)

// UserAgent identifies this client build to the daemon.
var UserAgent = fmt.Sprintf("VaultLink/%s (%s; %s; %s)", version.Version, version.Revision, runtime.GOOS, runtime.GOARCH)

// Client talks to a running vaultlink daemon over its control plane API.
type Client struct {
	http    *req.Client
	baseURL string
}

// New builds a client for the daemon at baseURL. The token may be empty
// when the daemon runs without auth.
func New(baseURL string, token string) (*Client, error) {
	if baseURL == "" {
		return nil, ErrNoBaseURL
	}

	http := req.C().
		SetBaseURL(baseURL).
		SetCommonRetryCount(2).
		SetCommonRetryFixedInterval(500*time.Millisecond).
		SetTimeout(5*time.Minute).
		SetUserAgent(UserAgent).
		SetCommonHeader(HeaderClientVersion, version.Version).
		SetCommonErrorResult(&APIError{}).
		SetJsonMarshal(jsonMarshal).
		SetJsonUnmarshal(jsonUnmarshal)

	if token != "" {
		http.SetCommonBearerAuthToken(token)
	}

	return &Client{
		http:    http,
		baseURL: baseURL,
	}, nil
}

// BaseURL returns the daemon address this client was built for.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Info fetches the unauthenticated daemon banner. Doubles as a liveness
// probe.
func (c *Client) Info(ctx context.Context) (info *DaemonInfo, err error) {
	res, err := c.http.R().
		SetContext(ctx).
		SetSuccessResult(&info).
		Get(v1Root)

	if err := handleAPIError(res, err, "daemon info"); err != nil {
		return nil, err
	}

	return info, nil
}

// Status fetches the daemon process and sync engine state.
func (c *Client) Status(ctx context.Context) (status *DaemonStatus, err error) {
	res, err := c.http.R().
		SetContext(ctx).
		SetSuccessResult(&status).
		Get(v1Status)

	if err := handleAPIError(res, err, "daemon status"); err != nil {
		return nil, err
	}

	return status, nil
}
