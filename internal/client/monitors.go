package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"

	"zm-cli/internal/errs"
	"zm-cli/pkg/models"
)

// ListMonitors fetches every configured monitor. An empty list is a
// legitimate answer; a response without a monitors array is not.
func (c *ZMClient) ListMonitors(ctx context.Context) ([]models.Monitor, error) {
	resp, err := c.Do(ctx, func(req *resty.Request) (*resty.Response, error) {
		return req.Get(c.apiURL() + "/monitors.json")
	})
	if err != nil {
		return nil, err
	}

	var wrapper struct {
		Monitors json.RawMessage `json:"monitors"`
	}
	if err := json.Unmarshal(resp.Body(), &wrapper); err != nil || wrapper.Monitors == nil {
		return nil, &errs.UnexpectedFormatError{StatusCode: resp.StatusCode(), Body: string(resp.Body())}
	}

	var monitors []models.Monitor
	if err := json.Unmarshal(wrapper.Monitors, &monitors); err != nil {
		return nil, &errs.UnexpectedFormatError{StatusCode: resp.StatusCode(), Body: string(resp.Body())}
	}
	if monitors == nil {
		monitors = []models.Monitor{}
	}
	return monitors, nil
}

// AlarmCommand drives a monitor's alarm state: "on" forces an alarm,
// "off" cancels it, "status" just reads it. Returns the server's
// status string.
func (c *ZMClient) AlarmCommand(ctx context.Context, monitorID int, command string) (string, error) {
	if monitorID <= 0 {
		return "", &errs.ValidationError{Msg: fmt.Sprintf("monitor id must be positive, got %d", monitorID)}
	}
	command = strings.ToLower(command)
	switch command {
	case "on", "off", "status":
	default:
		return "", &errs.ValidationError{Msg: fmt.Sprintf("unknown alarm command %q", command)}
	}

	resp, err := c.Do(ctx, func(req *resty.Request) (*resty.Response, error) {
		return req.Get(fmt.Sprintf("%s/monitors/alarm/id:%d/command:%s.json", c.apiURL(), monitorID, command))
	})
	if err != nil {
		return "", err
	}

	var body struct {
		Status json.RawMessage `json:"status"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err != nil || body.Status == nil {
		return "", &errs.UnexpectedFormatError{StatusCode: resp.StatusCode(), Body: string(resp.Body())}
	}
	return strings.Trim(string(body.Status), `"`), nil
}
