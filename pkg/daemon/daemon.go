// Package daemon serves the battery manager over a unix socket.
package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/acpibatt/pkg/battery"
	"github.com/charlie0129/acpibatt/pkg/config"
	"github.com/charlie0129/acpibatt/pkg/events"
	"github.com/charlie0129/acpibatt/pkg/manager"
	"github.com/charlie0129/acpibatt/pkg/power"
)

// Daemon owns the battery manager and everything that feeds or reads it.
type Daemon struct {
	conf config.Config
	mgr  *manager.Manager
	hub  *events.EventHub

	refresh *Scheduler
	bus     atomic.Pointer[power.DBusRoot]
	devices *devices

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New opens the configured firmware devices and builds the manager. Nothing
// is polled until Start.
func New(conf config.Config) (*Daemon, error) {
	devs, err := openDevices(conf)
	if err != nil {
		return nil, err
	}

	d := &Daemon{
		conf:    conf,
		hub:     events.NewEventHub(),
		devices: devs,
	}

	hubRoot := power.RootFunc(func(connected bool) {
		d.hub.Publish(events.AdapterState, events.AdapterStateEvent{
			Connected: connected,
			Ts:        time.Now().Unix(),
		})
	})
	busRoot := power.RootFunc(func(connected bool) {
		if r := d.bus.Load(); r != nil {
			r.AdapterChanged(connected)
		}
	})

	d.mgr, err = manager.New(manager.Options{
		Config:  conf,
		Adapter: devs.adapter,
		Slots:   devs.slots,
		Root:    power.Tee(power.LogRoot{}, hubRoot, busRoot),
		OnState: func(st battery.State) {
			d.hub.Publish(events.BatteryState, st)
		},
		OnError: func(ev battery.ErrorEvent) {
			d.hub.Publish(events.BatteryError, ev)
		},
	})
	if err != nil {
		devs.close()
		return nil, pkgerrors.Wrap(err, "failed to create battery manager")
	}

	d.refresh = NewScheduler(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		return d.mgr.PollAll(ctx)
	}, func(err error) {
		logrus.WithError(err).Error("scheduled refresh failed")
	})

	return d, nil
}

// Start attaches every battery and starts the background watchers.
func (d *Daemon) Start(ctx context.Context) error {
	if d.conf.DBus() {
		r, err := power.NewDBusRoot(d.mgr)
		if err != nil {
			logrus.WithError(err).Error("failed to start dbus service, continuing without it")
		} else {
			d.bus.Store(r)
		}
	}

	if err := d.mgr.Start(ctx); err != nil {
		return err
	}

	if err := d.refresh.Schedule(d.conf.RefreshSchedule()); err != nil {
		logrus.WithError(err).Error("ignoring refresh schedule")
	}
	d.refresh.Start()

	watchCtx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.goWatch(func() { d.watchSleep(watchCtx) })
	d.goWatch(func() { watchAdapter(watchCtx, d.conf.AdapterCheckInterval(), d.mgr) })
	if d.conf.DBus() {
		d.goWatch(func() {
			if err := watchUPower(watchCtx, d.mgr); err != nil {
				logrus.WithError(err).Warn("failed to watch UPower, relying on periodic adapter checks")
			}
		})
	}

	return nil
}

// Stop detaches every battery and releases the firmware devices.
func (d *Daemon) Stop() {
	if d.cancel != nil {
		d.cancel()
		d.wg.Wait()
	}
	d.refresh.Stop()
	d.mgr.Stop()

	if r := d.bus.Swap(nil); r != nil {
		if err := r.Close(); err != nil {
			logrus.WithError(err).Warn("failed to release dbus name")
		}
	}
	d.hub.Close()
	d.devices.close()
}

// Reload re-reads the config file and restarts every attached battery with
// the new settings.
func (d *Daemon) Reload(ctx context.Context) error {
	if err := d.conf.Load(); err != nil {
		return pkgerrors.Wrap(err, "failed to reload config")
	}
	if err := d.mgr.Reload(ctx, d.conf); err != nil {
		return err
	}
	if err := d.refresh.Schedule(d.conf.RefreshSchedule()); err != nil {
		logrus.WithError(err).Error("ignoring refresh schedule")
	}
	logrus.WithFields(d.conf.LogrusFields()).Info("config reloaded")
	return nil
}

func (d *Daemon) goWatch(fn func()) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		fn()
	}()
}

func (d *Daemon) watchSleep(ctx context.Context) {
	onWake := func() {
		wctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := d.mgr.SystemSleepWake(wctx, true); err != nil {
			logrus.WithError(err).Error("failed to handle wake")
		}
	}

	if d.conf.DBus() {
		err := watchLogind(ctx, func(sleeping bool) {
			if sleeping {
				_ = d.mgr.SystemSleepWake(ctx, false)
				return
			}
			onWake()
		})
		if err == nil {
			return
		}
		logrus.WithError(err).Warn("failed to watch logind, falling back to clock jump detection")
	}

	watchClock(ctx, clockCheckInterval, clockJumpThreshold, onWake)
}

func Run(configPath string, unixSocketPath string, allowNonRoot bool) error {
	conf, err := config.NewFile(configPath)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to parse config during startup")
	}
	logrus.WithFields(conf.LogrusFields()).Infof("config loaded")

	d, err := New(conf)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	err = d.Start(ctx)
	cancel()
	if err != nil {
		d.Stop()
		return err
	}

	// Receive SIGHUP to reload config
	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGHUP)
		for range sigc {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			if err := d.Reload(ctx); err != nil {
				logrus.Errorf("failed to reload config: %v", err)
			}
			cancel()
		}
	}()

	srv := &http.Server{
		Handler:           d.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Create the socket to listen on:
	l, err := net.Listen("unix", unixSocketPath)
	if err != nil {
		d.Stop()
		return pkgerrors.Wrapf(err, "failed to listen on %s", unixSocketPath)
	}

	if conf.AllowNonRootAccess() || allowNonRoot {
		logrus.Infof("non-root access is allowed, changing permissions of %s to 0777", unixSocketPath)
		err = os.Chmod(unixSocketPath, 0777)
		if err != nil {
			d.Stop()
			return pkgerrors.Wrapf(err, "failed to chmod %s", unixSocketPath)
		}
	}

	// Serve HTTP on unix socket
	go func() {
		logrus.Infof("http server listening on %s", l.Addr().String())
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatal(err)
		}
	}()

	// Handle common process-killing signals, so we can gracefully shut down:
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	// Wait for a SIGINT or SIGTERM:
	sig := <-sigc
	logrus.Infof("caught signal \"%s\": shutting down.", sig)

	// Close the hub first so SSE streams end and Shutdown does not wait on them.
	d.hub.Close()

	logrus.Info("shutting down http server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = srv.Shutdown(shutdownCtx)
	if err != nil {
		logrus.Errorf("failed to shutdown http server: %v", err)
	}
	shutdownCancel()

	logrus.Info("stopping battery manager")
	d.Stop()

	logrus.Info("exiting")
	return nil
}

func (d *Daemon) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logrus.StandardLogger()))
	router.GET("/config", d.getConfig)
	router.GET("/batteries", d.getBatteries)
	router.GET("/batteries/:slot", d.getBattery)
	router.GET("/batteries/:slot/legacy", d.getLegacy)
	router.GET("/adapter", d.getAdapter)
	router.PUT("/polling-interval", d.setPollingInterval)
	router.POST("/poll", d.poll)
	router.GET("/refresh", d.getRefresh)
	router.POST("/refresh/skip", d.skipRefresh)
	router.POST("/notify/adapter", d.notifyAdapter)
	router.POST("/notify/batteries/:slot", d.notifyBattery)
	router.GET("/events", d.streamEvents)
	router.GET("/version", getVersion)

	return router
}
