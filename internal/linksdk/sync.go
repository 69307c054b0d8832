package linksdk

import (
	"context"
	"strconv"
)

// SyncNow asks the daemon for an immediate inbound full pass. Returns an
// APIError with CodeSyncBusy when one is already running.
func (c *Client) SyncNow(ctx context.Context) error {
	res, err := c.http.R().
		SetContext(ctx).
		Post(v1SyncNow)

	return handleAPIError(res, err, "sync now")
}

// Push asks the daemon to mirror the entire vault outward.
func (c *Client) Push(ctx context.Context) error {
	res, err := c.http.R().
		SetContext(ctx).
		Post(v1SyncPush)

	return handleAPIError(res, err, "sync push")
}

// SyncFile pushes a single vault path outward. Folders go out with their
// contents.
func (c *Client) SyncFile(ctx context.Context, path string) error {
	res, err := c.http.R().
		SetContext(ctx).
		SetBody(&SyncFileRequest{Path: path}).
		Post(v1SyncFile)

	return handleAPIError(res, err, "sync file")
}

// SyncStatus fetches the overview plus every tracked path.
func (c *Client) SyncStatus(ctx context.Context) (status *SyncStatusResponse, err error) {
	res, err := c.http.R().
		SetContext(ctx).
		SetSuccessResult(&status).
		Get(v1SyncStatus)

	if err := handleAPIError(res, err, "sync status"); err != nil {
		return nil, err
	}

	return status, nil
}

// History fetches the most recent journal entries, newest first. limit <= 0
// means the daemon default.
func (c *Client) History(ctx context.Context, limit int) ([]HistoryOp, error) {
	var resp *HistoryResponse

	r := c.http.R().
		SetContext(ctx).
		SetSuccessResult(&resp)
	if limit > 0 {
		r.SetQueryParam("limit", strconv.Itoa(limit))
	}

	res, err := r.Get(v1History)
	if err := handleAPIError(res, err, "sync history"); err != nil {
		return nil, err
	}

	return resp.Ops, nil
}

// GetSettings fetches the vault's active sync settings.
func (c *Client) GetSettings(ctx context.Context) (settings *SyncSettings, err error) {
	res, err := c.http.R().
		SetContext(ctx).
		SetSuccessResult(&settings).
		Get(v1Settings)

	if err := handleAPIError(res, err, "get settings"); err != nil {
		return nil, err
	}

	return settings, nil
}

// UpdateSettings replaces the vault's sync settings and returns the applied
// result. The daemon validates, persists and live-reloads them.
func (c *Client) UpdateSettings(ctx context.Context, settings *SyncSettings) (applied *SyncSettings, err error) {
	res, err := c.http.R().
		SetContext(ctx).
		SetBody(settings).
		SetSuccessResult(&applied).
		Put(v1Settings)

	if err := handleAPIError(res, err, "update settings"); err != nil {
		return nil, err
	}

	return applied, nil
}
