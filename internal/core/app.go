package core

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/timmyreynolds/HELICS/internal/ids"
	"github.com/timmyreynolds/HELICS/internal/logging"
)

// App is a thin process-lifecycle wrapper around a Core: construct, connect,
// block until the caller's context is cancelled, disconnect. Grounded on
// the original HELICS CoreApp's shape (construct + arg-derived configure +
// run + a forced-termination safety net for a stuck shutdown), supplemented
// here since cmd/helics-core needs exactly this and nothing in the
// distilled spec names it.
type App struct {
	Core *Core
	log  *logrus.Entry

	mu   sync.Mutex
	down bool
}

// NewApp constructs an unconnected Core wrapped in an App.
func NewApp(name string, logger *logrus.Logger) *App {
	return &App{
		Core: New(name, logger, nil),
		log:  logging.ForComponent(logger, "core-app").WithField("node", name),
	}
}

// Run connects the core and blocks until ctx is cancelled, then disconnects
// once. Safe to call ForceTerminate concurrently from a signal handler.
func (a *App) Run(ctx context.Context, assign func() (ids.GlobalBrokerId, error)) error {
	if err := a.Core.Connect(assign); err != nil {
		return err
	}
	<-ctx.Done()
	a.shutdown()
	return nil
}

// ForceTerminate is the safety net for a shutdown that Run's graceful path
// isn't making progress on — e.g. a federate stuck in a blocking
// RequestTimeAsync call that a plain context cancellation wouldn't unblock
// on its own, since Disconnect is what actually resolves those tickets.
func (a *App) ForceTerminate() {
	a.log.Warn("force-terminating core")
	a.shutdown()
}

func (a *App) shutdown() {
	a.mu.Lock()
	if a.down {
		a.mu.Unlock()
		return
	}
	a.down = true
	a.mu.Unlock()
	a.Core.Disconnect()
}
