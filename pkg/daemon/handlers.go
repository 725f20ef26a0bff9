package daemon

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/acpibatt/pkg/config"
	"github.com/charlie0129/acpibatt/pkg/events"
	"github.com/charlie0129/acpibatt/pkg/manager"
	"github.com/charlie0129/acpibatt/pkg/version"
)

func (d *Daemon) getConfig(c *gin.Context) {
	fc, err := config.NewRawFileConfigFromConfig(d.conf)
	if err != nil {
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	c.IndentedJSON(http.StatusOK, fc)
}

func (d *Daemon) getBatteries(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, d.mgr.States())
}

func (d *Daemon) getBattery(c *gin.Context) {
	st, err := d.mgr.State(c.Param("slot"))
	if err != nil {
		abortWithSlotError(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, st)
}

func (d *Daemon) getLegacy(c *gin.Context) {
	st, err := d.mgr.State(c.Param("slot"))
	if err != nil {
		abortWithSlotError(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, st.Legacy())
}

func abortWithSlotError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, manager.ErrNoSuchSlot) {
		status = http.StatusNotFound
	}
	c.IndentedJSON(status, err.Error())
	_ = c.AbortWithError(status, err)
}

func (d *Daemon) getAdapter(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, gin.H{"connected": d.mgr.Connected()})
}

func (d *Daemon) setPollingInterval(c *gin.Context) {
	var ms int
	if err := c.BindJSON(&ms); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	if err := d.mgr.SetPollingInterval(c.Request.Context(), ms); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, manager.ErrInvalidInterval) {
			status = http.StatusBadRequest
		}
		c.IndentedJSON(status, err.Error())
		_ = c.AbortWithError(status, err)
		return
	}

	if err := d.conf.Save(); err != nil {
		logrus.Errorf("saveConfig failed: %v", err)
		c.IndentedJSON(http.StatusInternalServerError, err.Error())
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	msg := fmt.Sprintf("set standard polling interval to %s", time.Duration(ms)*time.Millisecond)
	if period, ok := d.conf.PollingPeriodOverride(); ok {
		msg += fmt.Sprintf(". A polling period override of %s is configured and still takes precedence.", period)
	}
	logrus.Info(msg)

	c.IndentedJSON(http.StatusCreated, msg)
}

func (d *Daemon) poll(c *gin.Context) {
	if err := d.mgr.PollAll(c.Request.Context()); err != nil {
		c.IndentedJSON(http.StatusInternalServerError, err.Error())
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	c.IndentedJSON(http.StatusOK, fmt.Sprintf("polled %d batteries", len(d.mgr.States())))
}

func (d *Daemon) refreshStatus() gin.H {
	next, running := d.refresh.Status()
	h := gin.H{
		"schedule": d.conf.RefreshSchedule(),
		"running":  running,
	}
	if !next.IsZero() {
		h["nextRun"] = next
	}
	return h
}

func (d *Daemon) getRefresh(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, d.refreshStatus())
}

func (d *Daemon) skipRefresh(c *gin.Context) {
	if err := d.refresh.Skip(); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrNoSchedule) {
			status = http.StatusConflict
		}
		c.IndentedJSON(status, err.Error())
		_ = c.AbortWithError(status, err)
		return
	}
	c.IndentedJSON(http.StatusOK, d.refreshStatus())
}

func (d *Daemon) notifyAdapter(c *gin.Context) {
	if err := d.mgr.HandleAdapterNotification(c.Request.Context()); err != nil {
		c.IndentedJSON(http.StatusInternalServerError, err.Error())
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	c.IndentedJSON(http.StatusOK, gin.H{"connected": d.mgr.Connected()})
}

func (d *Daemon) notifyBattery(c *gin.Context) {
	slot := c.Param("slot")
	if err := d.mgr.HandleNotification(c.Request.Context(), slot); err != nil {
		abortWithSlotError(c, err)
		return
	}
	st, err := d.mgr.State(slot)
	if err != nil {
		abortWithSlotError(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, st)
}

// streamEvents sends the current adapter and battery states, then every hub
// event until the client goes away.
func (d *Daemon) streamEvents(c *gin.Context) {
	ch := d.hub.Subscribe()
	defer d.hub.Unsubscribe(ch)

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	c.SSEvent(events.AdapterState, events.AdapterStateEvent{
		Connected: d.mgr.Connected(),
		Ts:        time.Now().Unix(),
	})
	for _, st := range d.mgr.States() {
		c.SSEvent(events.BatteryState, st)
	}
	c.Writer.Flush()

	c.Stream(func(_ io.Writer) bool {
		select {
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(ev.Name, string(ev.Data))
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func getVersion(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, version.Version)
}
