package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// State is a lifecycle state
type State int32

const (
	Uninstalled State = iota
	Installing
	Installed
	Activating
	Active
)

func (s State) String() string {
	switch s {
	case Uninstalled:
		return "uninstalled"
	case Installing:
		return "installing"
	case Installed:
		return "installed"
	case Activating:
		return "activating"
	case Active:
		return "active"
	default:
		return "unknown"
	}
}

// Lifecycle precaches the manifest at install and retires old stores at
// activation, after which the gateway controls every request.
type Lifecycle struct {
	gw       *Gateway
	manifest []string
	log      zerolog.Logger

	mu    sync.Mutex // serializes transitions
	state atomic.Int32
}

func NewLifecycle(gw *Gateway, manifest []string) *Lifecycle {
	return &Lifecycle{
		gw:       gw,
		manifest: append([]string(nil), manifest...),
		log:      gw.log.With().Str("component", "lifecycle").Logger(),
	}
}

func (l *Lifecycle) State() State {
	return State(l.state.Load())
}

func (l *Lifecycle) set(s State) {
	prev := State(l.state.Swap(int32(s)))
	l.log.Info().Stringer("from", prev).Stringer("to", s).Msg("lifecycle transition")
}

type precached struct {
	req  *http.Request
	resp *Response
}

// Install fetches every manifest URL and writes them into the static store.
// Any failed or non-2xx fetch fails the whole install and nothing is written.
func (l *Lifecycle) Install(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.set(Installing)
	if err := l.install(ctx); err != nil {
		l.set(Uninstalled)
		return err
	}
	l.set(Installed)
	return nil
}

func (l *Lifecycle) install(ctx context.Context) error {
	static, err := l.gw.stores.Open(ctx, l.gw.names.Static)
	if err != nil {
		return fmt.Errorf("install: %w", err)
	}

	fetched := make([]precached, len(l.manifest))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, u := range l.manifest {
		i, u := i, u
		eg.Go(func() error {
			req, err := http.NewRequestWithContext(egCtx, http.MethodGet, u, nil)
			if err != nil {
				return fmt.Errorf("precache %s: %w", u, err)
			}
			resp, err := l.gw.origin.Fetch(egCtx, req)
			if err != nil {
				return fmt.Errorf("precache %s: %w", u, err)
			}
			if !resp.OK() {
				return fmt.Errorf("precache %s: status %d", u, resp.Status)
			}
			fetched[i] = precached{req: req, resp: resp}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return fmt.Errorf("install: %w", err)
	}

	now := l.gw.now()
	for _, p := range fetched {
		if err := l.gw.stores.PutNow(ctx, static.Name(), p.req, p.resp.entry(p.req, now)); err != nil {
			return fmt.Errorf("install: %w", err)
		}
	}
	l.log.Info().Str("store", static.Name()).Int("entries", len(fetched)).Msg("precache complete")
	return nil
}

// Activate deletes every store outside the current allow-list and claims
// clients. It requires a completed install.
func (l *Lifecycle) Activate(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch st := l.State(); st {
	case Installed, Active:
	default:
		return fmt.Errorf("activate: lifecycle is %s", st)
	}

	l.set(Activating)
	deleted, err := l.gw.stores.DeleteStoresNotIn(ctx, l.gw.names.AllowList())
	if err != nil {
		l.set(Installed)
		return fmt.Errorf("activate: %w", err)
	}
	if len(deleted) > 0 {
		l.log.Info().Strs("deleted", deleted).Msg("removed old stores")
	}

	l.gw.claim()
	l.set(Active)
	return nil
}

// Start installs and activates immediately without waiting for older
// generations.
func (l *Lifecycle) Start(ctx context.Context) error {
	if err := l.Install(ctx); err != nil {
		return err
	}
	return l.Activate(ctx)
}
