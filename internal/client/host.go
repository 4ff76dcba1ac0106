package client

import (
	"context"
	"encoding/json"

	"github.com/go-resty/resty/v2"

	"zm-cli/internal/errs"
	"zm-cli/pkg/models"
)

// Version fetches the server and API versions.
func (c *ZMClient) Version(ctx context.Context) (*models.HostVersion, error) {
	resp, err := c.Do(ctx, func(req *resty.Request) (*resty.Response, error) {
		return req.Get(c.apiURL() + "/host/getVersion.json")
	})
	if err != nil {
		return nil, err
	}

	var v models.HostVersion
	if err := json.Unmarshal(resp.Body(), &v); err != nil || v.Version == "" {
		return nil, &errs.UnexpectedFormatError{StatusCode: resp.StatusCode(), Body: string(resp.Body())}
	}
	return &v, nil
}

// DaemonCheck reports whether the capture daemon is running.
func (c *ZMClient) DaemonCheck(ctx context.Context) (bool, error) {
	resp, err := c.Do(ctx, func(req *resty.Request) (*resty.Response, error) {
		return req.Get(c.apiURL() + "/host/daemonCheck.json")
	})
	if err != nil {
		return false, err
	}

	var body struct {
		Result models.FlexInt `json:"result"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return false, &errs.UnexpectedFormatError{StatusCode: resp.StatusCode(), Body: string(resp.Body())}
	}
	return body.Result != 0, nil
}
