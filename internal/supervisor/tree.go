// Package supervisor runs the long-lived services of the server process
// under a suture tree.
package supervisor

import (
	"context"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"skyfeed/internal/logging"
)

// Tree groups services into a background layer (hotness queue, sweeps,
// engagement consumer) and an API layer.
type Tree struct {
	root       *suture.Supervisor
	background *suture.Supervisor
	api        *suture.Supervisor
}

// New builds the tree. Services restart with backoff after 5 failures
// decaying over 30s.
func New(shutdownTimeout time.Duration) *Tree {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	handler := &sutureslog.Handler{Logger: logging.NewSlogLogger()}
	spec := suture.Spec{
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		Timeout:          shutdownTimeout,
	}
	rootSpec := spec
	rootSpec.EventHook = handler.MustHook()

	t := &Tree{
		root:       suture.New("skyfeed", rootSpec),
		background: suture.New("background", spec),
		api:        suture.New("api", spec),
	}
	t.root.Add(t.background)
	t.root.Add(t.api)
	return t
}

func (t *Tree) AddBackground(svc suture.Service) suture.ServiceToken { return t.background.Add(svc) }

func (t *Tree) AddAPI(svc suture.Service) suture.ServiceToken { return t.api.Add(svc) }

// Serve blocks until ctx is cancelled.
func (t *Tree) Serve(ctx context.Context) error { return t.root.Serve(ctx) }
