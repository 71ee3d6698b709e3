package app

import (
	"context"
	"io"
	"time"

	"github.com/chainaudit/chainaudit/pkg/api"
	"github.com/chainaudit/chainaudit/pkg/app/build"
	"github.com/chainaudit/chainaudit/pkg/app/config"
	"github.com/chainaudit/chainaudit/pkg/errors"
	"github.com/chainaudit/chainaudit/pkg/logg"
	"github.com/hako/durafmt"
)

type App struct {
	server          *api.Server
	shutdownTimeout time.Duration
	logCloser       io.Closer
	startTime       time.Time
	Log             logg.Logg
}

func New(ctx context.Context, appCfg *config.AppConfig) (result *App, err error) {
	var params *build.AppParams
	if params, err = build.App(ctx, appCfg); err != nil {
		return
	}

	result = &App{
		server:          params.Server,
		shutdownTimeout: params.ShutdownTimeout,
		logCloser:       params.LogCloser,
		Log:             params.AppLog,
	}

	return
}

// Serve until the context is cancelled, then drain in-flight requests
func (a *App) Execute(ctx context.Context) (err error) {
	defer a.closeLog()
	a.startTime = time.Now()

	serveErr := make(chan error, 1)
	go func() {
		defer errors.CatchPanicDo(func(panicErr error) { serveErr <- panicErr })
		serveErr <- a.server.Run()
	}()

	select {
	case err = <-serveErr:
		if err != nil {
			err = errors.WithMessage(err, "server stopped")
		}
		return
	case <-ctx.Done():
	}

	a.Log.Info("shutting down ... ")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()

	if err = a.server.Shutdown(shutdownCtx); err != nil {
		err = errors.WithMessage(err, "unable to shut down server cleanly")
		return
	}

	a.Log.Infof("server stopped after %s", durafmt.ParseShort(time.Since(a.startTime)))

	return
}

func (a *App) closeLog() {
	if a.logCloser == nil {
		return
	}
	if err := a.logCloser.Close(); err != nil {
		errors.ErrLog(a.Log, err).Warn("unable to close log file")
	}
}
