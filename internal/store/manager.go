package store

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"

	"github.com/rs/zerolog"

	"github.com/briangreenhill/kidbuddy/internal/metrics"
)

// Manager owns every named store. Build one per process and pass it around.
type Manager struct {
	backend Backend
	log     zerolog.Logger
	pending sync.WaitGroup
}

// NewManager wraps a backend
func NewManager(backend Backend, log zerolog.Logger) *Manager {
	return &Manager{
		backend: backend,
		log:     log.With().Str("component", "store").Logger(),
	}
}

// Open returns the named store, creating it if necessary
func (m *Manager) Open(ctx context.Context, name string) (*Store, error) {
	if err := m.backend.CreateStore(ctx, name); err != nil {
		return nil, fmt.Errorf("open store %s: %w", name, err)
	}
	return &Store{name: name, m: m}, nil
}

// Match looks up the entry for r in one store
func (m *Manager) Match(ctx context.Context, r *http.Request, storeName string) (*Entry, error) {
	if !Cacheable(r) {
		return nil, ErrNotFound
	}
	e, err := m.backend.Get(ctx, storeName, Key(r))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("match %s: %w", storeName, err)
	}
	return e, nil
}

// MatchAll looks r up in the preferred stores first, then in every other
// store. Backend failures on individual stores are logged and skipped.
func (m *Manager) MatchAll(ctx context.Context, r *http.Request, preferred ...string) (*Entry, error) {
	if !Cacheable(r) {
		return nil, ErrNotFound
	}

	order := append([]string(nil), preferred...)
	names, err := m.backend.ListStores(ctx)
	if err != nil {
		m.log.Warn().Err(err).Msg("list stores failed")
	}
	for _, n := range names {
		if !slices.Contains(order, n) {
			order = append(order, n)
		}
	}

	key := Key(r)
	for _, n := range order {
		e, err := m.backend.Get(ctx, n, key)
		switch {
		case err == nil:
			return e, nil
		case errors.Is(err, ErrNotFound):
		default:
			m.log.Warn().Err(err).Str("store", n).Str("key", key).Msg("store lookup failed")
		}
	}
	return nil, ErrNotFound
}

// Put persists a successful response for r without blocking the caller.
// The write runs detached from ctx's cancellation; failures are logged and
// counted, never returned.
func (m *Manager) Put(ctx context.Context, storeName string, r *http.Request, e *Entry) {
	if !Cacheable(r) || !e.OK() {
		return
	}
	key := Key(r)
	entry := e.Clone()
	detached := context.WithoutCancel(ctx)

	m.pending.Add(1)
	go func() {
		defer m.pending.Done()
		if err := m.backend.Set(detached, storeName, key, entry); err != nil {
			metrics.StoreWriteFailures.WithLabelValues(storeName).Inc()
			m.log.Warn().Err(err).Str("store", storeName).Str("key", key).Msg("cache write failed")
			return
		}
		m.log.Debug().Str("store", storeName).Str("key", key).Msg("cache write")
	}()
}

// PutNow writes synchronously and reports the error
func (m *Manager) PutNow(ctx context.Context, storeName string, r *http.Request, e *Entry) error {
	if !Cacheable(r) {
		return fmt.Errorf("put %s: %s requests are not cacheable", storeName, r.Method)
	}
	if !e.OK() {
		return fmt.Errorf("put %s: refusing to cache status %d", storeName, e.Status)
	}
	if err := m.backend.Set(ctx, storeName, Key(r), e.Clone()); err != nil {
		return fmt.Errorf("put %s: %w", storeName, err)
	}
	return nil
}

// Wait blocks until every background write has finished
func (m *Manager) Wait() {
	m.pending.Wait()
}

// Names lists every store
func (m *Manager) Names(ctx context.Context) ([]string, error) {
	names, err := m.backend.ListStores(ctx)
	if err != nil {
		return nil, fmt.Errorf("list stores: %w", err)
	}
	return names, nil
}

// DeleteStoresNotIn removes every store whose name is absent from allow and
// returns the names it deleted. A store that fails to delete is logged and skipped.
func (m *Manager) DeleteStoresNotIn(ctx context.Context, allow []string) ([]string, error) {
	names, err := m.Names(ctx)
	if err != nil {
		return nil, err
	}

	var deleted []string
	for _, n := range names {
		if slices.Contains(allow, n) {
			continue
		}
		if err := m.backend.DeleteStore(ctx, n); err != nil {
			m.log.Warn().Err(err).Str("store", n).Msg("delete store failed")
			continue
		}
		metrics.StoresPurged.Inc()
		m.log.Info().Str("store", n).Msg("deleted old store")
		deleted = append(deleted, n)
	}
	return deleted, nil
}

// Close waits for pending writes and closes the backend
func (m *Manager) Close() error {
	m.Wait()
	return m.backend.Close()
}
