package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/wurt83ow/gophnotes-client/pkg/badgerkeeper"
	"github.com/wurt83ow/gophnotes-client/pkg/bdkeeper"
	"github.com/wurt83ow/gophnotes-client/pkg/config"
	"github.com/wurt83ow/gophnotes-client/pkg/logger"
	"github.com/wurt83ow/gophnotes-client/pkg/netwatch"
	"github.com/wurt83ow/gophnotes-client/pkg/notesync"
	"github.com/wurt83ow/gophnotes-client/pkg/services"
	"github.com/wurt83ow/gophnotes-client/pkg/storage"
	"github.com/wurt83ow/gophnotes-client/pkg/syncengine"
	"github.com/wurt83ow/gophnotes-client/pkg/syncinfo"
)

// app owns every long-lived component of a client session.
type app struct {
	opt     *config.Options
	log     *logger.Logger
	store   *storage.Storage
	monitor *netwatch.Monitor
	watcher *netwatch.SignalWatcher
	state   *syncengine.SyncState
	engine  *syncengine.Engine
	info    *syncinfo.SyncManager
	svc     *services.Service
	cancel  context.CancelFunc
}

func openKeeper(opt *config.Options) (storage.LocalStore, error) {
	switch opt.StoreDriver {
	case config.DriverBadger:
		return badgerkeeper.Open(opt.StorePath())
	default:
		return bdkeeper.Open(opt.StorePath())
	}
}

func openApp(ctx context.Context, opt *config.Options) (a *app, err error) {
	log, err := logger.NewLogger(logger.Options{File: opt.LogFile, Level: opt.LogLevel, MaxSizeMB: opt.LogMaxSizeMB})
	if err != nil {
		return nil, err
	}
	a = &app{opt: opt, log: log}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	keeper, err := openKeeper(opt)
	if err != nil {
		// The session still runs from memory; nothing will survive it.
		log.Error("failed to open local store", "driver", opt.StoreDriver, "path", opt.StorePath(), "error", err)
		keeper = storage.NewMemory()
	}
	a.store = storage.New(ctx, keeper, log.Logger)

	a.info, err = syncinfo.NewSyncManager(opt.SyncInfoPath())
	if err != nil {
		return a, err
	}

	remote, err := notesync.NewRemote(opt.ServerURL,
		notesync.WithHTTPClient(&http.Client{Timeout: opt.RequestTimeout}),
		notesync.WithAuth(opt.AuthToken, opt.ClientID),
	)
	if err != nil {
		return a, err
	}

	a.monitor = netwatch.NewMonitor(false, log.Logger)

	// The engine subscribes to reconnects before anything can report the
	// first offline to online edge, so queued work from earlier sessions
	// drains at startup.
	a.state = syncengine.NewSyncState()
	a.engine, err = syncengine.New(ctx, a.store, remote, a.monitor, a.state,
		syncengine.WithDebounce(opt.Debounce),
		syncengine.WithLogger(log.Logger),
		syncengine.WithRecorder(a.info),
	)
	if err != nil {
		return a, err
	}
	a.svc = services.NewServices(a.engine, a.monitor, log.Logger)

	bg, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	if opt.SyncWithServer {
		a.watcher, err = netwatch.NewSignalWatcher(opt.SignalDir, a.monitor, log.Logger)
		if err != nil {
			return a, err
		}
		if err := a.watcher.Start(); err != nil {
			return a, err
		}
		prober := netwatch.NewProber(remote, a.monitor, opt.ProbeInterval, opt.RequestTimeout, log.Logger)
		prober.Probe(ctx)
		go prober.Run(bg)
	}
	return a, nil
}

// Close pushes edits still waiting for their quiet period, drains the
// queue when online and releases everything in reverse order of creation.
func (a *app) Close() error {
	var errs []error
	if a.cancel != nil {
		a.cancel()
	}
	if a.engine != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := a.engine.FlushPending(ctx); err != nil {
			a.log.Warn("flush on exit failed", "error", err)
		}
		if a.monitor.IsOnline() {
			if err := a.engine.DrainQueue(ctx); err != nil {
				a.log.Warn("drain on exit failed", "error", err)
			}
		}
		cancel()
		errs = append(errs, a.engine.Close())
	}
	if a.state != nil {
		a.state.Close()
	}
	if a.watcher != nil {
		errs = append(errs, a.watcher.Stop())
	}
	if a.info != nil {
		errs = append(errs, a.info.SaveSyncInfoToFile())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if err := errors.Join(errs...); err != nil {
		a.log.Error("shutdown", "error", err)
		a.log.Close()
		return fmt.Errorf("failed to close client: %w", err)
	}
	return a.log.Close()
}
