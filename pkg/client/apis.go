package client

import (
	"encoding/json"
	"net/url"
	"strconv"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/charlie0129/acpibatt/pkg/battery"
	"github.com/charlie0129/acpibatt/pkg/config"
)

// AdapterStatus is the body of GET /adapter.
type AdapterStatus struct {
	Connected bool `json:"connected"`
}

// RefreshStatus is the body of GET /refresh and POST /refresh/skip.
type RefreshStatus struct {
	Schedule string    `json:"schedule"`
	Running  bool      `json:"running"`
	NextRun  time.Time `json:"nextRun"`
}

func (c *Client) GetBatteries() ([]battery.State, error) {
	ret, err := c.Get("/batteries")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get batteries")
	}

	var states []battery.State
	if err := json.Unmarshal([]byte(ret), &states); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal batteries")
	}
	return states, nil
}

func (c *Client) GetBattery(slot string) (*battery.State, error) {
	ret, err := c.Get("/batteries/" + url.PathEscape(slot))
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get battery %s", slot)
	}

	var st battery.State
	if err := json.Unmarshal([]byte(ret), &st); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal battery %s", slot)
	}
	return &st, nil
}

func (c *Client) GetLegacy(slot string) (*battery.Legacy, error) {
	ret, err := c.Get("/batteries/" + url.PathEscape(slot) + "/legacy")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get legacy info of %s", slot)
	}

	var l battery.Legacy
	if err := json.Unmarshal([]byte(ret), &l); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal legacy info")
	}
	return &l, nil
}

func (c *Client) GetAdapter() (bool, error) {
	ret, err := c.Get("/adapter")
	if err != nil {
		return false, pkgerrors.Wrapf(err, "failed to get power adapter status")
	}

	var a AdapterStatus
	if err := json.Unmarshal([]byte(ret), &a); err != nil {
		return false, pkgerrors.Wrapf(err, "failed to unmarshal power adapter status")
	}
	return a.Connected, nil
}

// SetPollingInterval sets the standard polling interval in milliseconds.
func (c *Client) SetPollingInterval(ms int) (string, error) {
	return c.Put("/polling-interval", strconv.Itoa(ms))
}

// Poll asks the daemon to poll every battery now.
func (c *Client) Poll() (string, error) {
	return c.Post("/poll", "")
}

// NotifyAdapter makes the daemon re-read the AC adapter as if firmware had
// signalled a change. It returns the resulting adapter state.
func (c *Client) NotifyAdapter() (bool, error) {
	ret, err := c.Post("/notify/adapter", "")
	if err != nil {
		return false, pkgerrors.Wrapf(err, "failed to notify power adapter")
	}

	var a AdapterStatus
	if err := json.Unmarshal([]byte(ret), &a); err != nil {
		return false, pkgerrors.Wrapf(err, "failed to unmarshal power adapter status")
	}
	return a.Connected, nil
}

// NotifyBattery delivers a firmware notification to one battery slot.
func (c *Client) NotifyBattery(slot string) (*battery.State, error) {
	ret, err := c.Post("/notify/batteries/"+url.PathEscape(slot), "")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to notify battery %s", slot)
	}

	var st battery.State
	if err := json.Unmarshal([]byte(ret), &st); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal battery %s", slot)
	}
	return &st, nil
}

func (c *Client) GetRefresh() (*RefreshStatus, error) {
	return c.refresh(c.Get("/refresh"))
}

// SkipRefresh skips the next scheduled full refresh.
func (c *Client) SkipRefresh() (*RefreshStatus, error) {
	return c.refresh(c.Post("/refresh/skip", ""))
}

func (c *Client) refresh(ret string, err error) (*RefreshStatus, error) {
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get refresh schedule")
	}

	var r RefreshStatus
	if err := json.Unmarshal([]byte(ret), &r); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal refresh schedule")
	}
	return &r, nil
}

func (c *Client) GetConfig() (*config.RawFileConfig, error) {
	ret, err := c.Get("/config")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get config")
	}

	var conf config.RawFileConfig
	if err := json.Unmarshal([]byte(ret), &conf); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal config")
	}

	return &conf, nil
}

func (c *Client) GetVersion() (string, error) {
	ret, err := c.Get("/version")
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to get version")
	}

	var v string
	if err := json.Unmarshal([]byte(ret), &v); err != nil {
		return "", pkgerrors.Wrapf(err, "failed to unmarshal version")
	}
	return v, nil
}
