package routes

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/briangreenhill/kidbuddy/internal/config"
	"github.com/briangreenhill/kidbuddy/internal/gateway"
	appmw "github.com/briangreenhill/kidbuddy/internal/http/middleware"
	"github.com/briangreenhill/kidbuddy/internal/jobs"
	"github.com/briangreenhill/kidbuddy/internal/metrics"
	"github.com/briangreenhill/kidbuddy/internal/notify"
	"github.com/briangreenhill/kidbuddy/internal/store"
)

const maxControlBody = 16 << 10

type Server struct {
	Router     *chi.Mux
	Gateway    *gateway.Gateway
	Lifecycle  *gateway.Lifecycle
	Stores     *store.Manager
	Hub        *notify.Hub
	Notifier   notify.Broadcaster // hub, or the relay when several processes share clients
	Dispatcher jobs.Dispatcher
	Cfg        config.Config
}

type ServerOptions struct {
	Gateway    *gateway.Gateway
	Lifecycle  *gateway.Lifecycle
	Stores     *store.Manager
	Hub        *notify.Hub
	Notifier   notify.Broadcaster
	Dispatcher jobs.Dispatcher
	// Direct receives bypassed traffic, normally the origin's reverse proxy
	Direct http.Handler
	Cfg    config.Config
	Logger zerolog.Logger
}

func New(opts ServerOptions) *Server {
	r := chi.NewRouter()
	r.Use(hlog.NewHandler(opts.Logger))
	r.Use(hlog.RequestIDHandler("req_id", "X-Request-Id"))
	r.Use(chimw.RealIP)
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Debug().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	}))
	r.Use(chimw.Recoverer)

	notifier := opts.Notifier
	if notifier == nil {
		notifier = opts.Hub
	}
	s := &Server{
		Router:     r,
		Gateway:    opts.Gateway,
		Lifecycle:  opts.Lifecycle,
		Stores:     opts.Stores,
		Hub:        opts.Hub,
		Notifier:   notifier,
		Dispatcher: opts.Dispatcher,
		Cfg:        opts.Cfg,
	}

	r.Route("/sw", func(sr chi.Router) {
		sr.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
			if _, err := w.Write([]byte("ok")); err != nil {
				hlog.FromRequest(r).Warn().Err(err).Msg("write health check response")
			}
		})
		sr.Get("/status", s.handleStatus)
		sr.Handle("/metrics", promhttp.Handler())
		sr.Handle("/ws", opts.Hub)
		sr.Post("/sync", s.handleSync)
		sr.Post("/push", s.handlePush)
	})

	var intercept http.Handler = opts.Gateway
	if opts.Direct != nil {
		intercept = appmw.Bypass(opts.Direct)(opts.Gateway)
	}
	r.Handle("/*", intercept)

	return s
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("write json response")
	}
}

type statusResponse struct {
	State       string   `json:"state"`
	Controlling bool     `json:"controlling"`
	Version     string   `json:"version"`
	Stores      []string `json:"stores"`
	Clients     int      `json:"clients"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	names, err := s.Stores.Names(r.Context())
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("list stores")
		http.Error(w, "could not list stores", http.StatusInternalServerError)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, r, http.StatusOK, statusResponse{
		State:       s.Lifecycle.State().String(),
		Controlling: s.Gateway.Controlling(),
		Version:     s.Cfg.Cache.Version,
		Stores:      names,
		Clients:     s.Hub.Clients(),
	})
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	body, err := io.ReadAll(io.LimitReader(r.Body, maxControlBody))
	if err != nil {
		http.Error(w, "could not read body", http.StatusBadRequest)
		return
	}

	p := jobs.SyncPayload{Tag: s.Cfg.Sync.Tag}
	if len(strings.TrimSpace(string(body))) > 0 {
		if p, err = jobs.ParseSyncPayload(body); err != nil {
			metrics.DroppedPayloads.WithLabelValues("sync").Inc()
			log.Warn().Err(err).Msg("dropping sync request")
			http.Error(w, "malformed sync payload", http.StatusBadRequest)
			return
		}
	}
	if p.RequestedAt == 0 {
		p.RequestedAt = time.Now().UnixMilli()
	}

	if err := s.Dispatcher.Dispatch(r.Context(), p); err != nil {
		log.Error().Err(err).Str("tag", p.Tag).Msg("dispatch sync")
		http.Error(w, "could not dispatch sync", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, r, http.StatusAccepted, map[string]string{"status": "accepted", "tag": p.Tag})
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	body, err := io.ReadAll(io.LimitReader(r.Body, maxControlBody))
	if err != nil {
		http.Error(w, "could not read body", http.StatusBadRequest)
		return
	}

	p, err := notify.ParsePush(body)
	if err != nil {
		if errors.Is(err, notify.ErrMalformedPayload) {
			metrics.DroppedPayloads.WithLabelValues("push").Inc()
		}
		log.Warn().Err(err).Msg("dropping push payload")
		http.Error(w, "malformed push payload", http.StatusBadRequest)
		return
	}

	n := s.Notifier.Broadcast(r.Context(), notify.Notification(p, s.Cfg.Sync.Icon, s.Cfg.Sync.Badge))
	writeJSON(w, r, http.StatusAccepted, map[string]int{"reached": n})
}
