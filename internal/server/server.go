package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"esm_pdw/internal/logger"
	"esm_pdw/internal/snapshot"
	"esm_pdw/pkg/models"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxSnapshotBody = 64 << 20

// StreamHandler atende o endpoint de stream (websocket.WebSocketManager)
type StreamHandler interface {
	HandleWebSocket(w http.ResponseWriter, r *http.Request)
	GetConnectedCount() int
}

// SnapshotStore grava e lista snapshots (snapshot.Writer)
type SnapshotStore interface {
	Save(ctx context.Context, pdws []models.PDW) (string, models.SnapshotMetadata, error)
	Recent(ctx context.Context, n int) ([]string, error)
}

// SnapshotNotifier anuncia snapshots gravados (nats.Publisher)
type SnapshotNotifier interface {
	PublishSnapshot(meta models.SnapshotMetadata, filename string) error
	IsConnected() bool
}

// SnapshotObserver conta gravações (metrics.Collector)
type SnapshotObserver interface {
	ObserveSnapshot(err error)
}

// Info é a resposta de /api/info
type Info struct {
	Name     string                 `json:"name"`
	Version  string                 `json:"version"`
	SensorID string                 `json:"sensor_id"`
	Emitters []models.EmitterConfig `json:"emitters"`
}

// Deps reúne os colaboradores do servidor HTTP
type Deps struct {
	WebDir    string
	Stream    StreamHandler
	Snapshots SnapshotStore
	Notifier  SnapshotNotifier
	Observer  SnapshotObserver
	Registry  *prometheus.Registry
	Info      Info
	Log       *logger.SystemLogger
}

// Server expõe o stream, os arquivos estáticos e a API de snapshot
type Server struct {
	deps   Deps
	router chi.Router
}

// New monta o roteador
func New(deps Deps) *Server {
	s := &Server{deps: deps}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	webDir := s.staticDir()
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, filepath.Join(webDir, "index.html"))
	})
	r.Handle("/web/*", http.StripPrefix("/web/", http.FileServer(http.Dir(webDir))))

	if deps.Stream != nil {
		r.Get("/ws/pdw", deps.Stream.HandleWebSocket)
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/snapshot", s.handleSnapshot)
		r.Get("/snapshots", s.handleListSnapshots)
		r.Get("/info", s.handleInfo)
	})

	r.Get("/health", s.handleHealth)

	if deps.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	s.router = r
	return s
}

// staticDir prefere o diretório dist (build do front-end) quando existir
func (s *Server) staticDir() string {
	distDir := filepath.Join(s.deps.WebDir, "dist")
	if st, err := os.Stat(distDir); err == nil && st.IsDir() {
		return distDir
	}
	return s.deps.WebDir
}

// Handler retorna o http.Handler do servidor
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run escuta em addr até o contexto terminar e então drena as requisições
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.deps.Snapshots == nil {
		writeJSON(w, http.StatusServiceUnavailable, models.SnapshotResponse{Error: "snapshots disabled"})
		return
	}

	var req models.SnapshotRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSnapshotBody)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.SnapshotResponse{Error: "invalid JSON: " + err.Error()})
		return
	}
	if req.PDWs == nil {
		req.PDWs = []models.PDW{}
	}

	filename, meta, err := s.deps.Snapshots.Save(r.Context(), req.PDWs)
	if err != nil && !errors.Is(err, snapshot.ErrIndex) {
		s.observeSnapshot(err)
		s.deps.Log.LogCriticalError("snapshot", "save", err)
		writeJSON(w, http.StatusInternalServerError, models.SnapshotResponse{Error: err.Error()})
		return
	}
	if err != nil {
		s.deps.Log.LogWarning("snapshot", err.Error())
	}

	s.observeSnapshot(nil)
	s.deps.Log.LogSnapshotSaved(filename, meta.PulseCount)

	if s.deps.Notifier != nil {
		if err := s.deps.Notifier.PublishSnapshot(meta, filename); err != nil {
			s.deps.Log.LogCriticalError("nats", "publish_snapshot", err)
		}
	}

	writeJSON(w, http.StatusOK, models.SnapshotResponse{OK: true, Filename: filename})
}

func (s *Server) observeSnapshot(err error) {
	if s.deps.Observer != nil {
		s.deps.Observer.ObserveSnapshot(err)
	}
}

func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	if s.deps.Snapshots == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"snapshots": []string{}})
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		limit = n
	}

	names, err := s.deps.Snapshots.Recent(r.Context(), limit)
	if err != nil {
		s.deps.Log.LogCriticalError("snapshot", "list", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"snapshots": names})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Info)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := struct {
		Status  string                 `json:"status"`
		Clients int                    `json:"clients"`
		NATS    bool                   `json:"nats_connected"`
		Logs    map[string]interface{} `json:"logs,omitempty"`
	}{Status: "ok", Logs: s.deps.Log.GetLogStats()}

	if s.deps.Stream != nil {
		health.Clients = s.deps.Stream.GetConnectedCount()
	}
	if s.deps.Notifier != nil {
		health.NATS = s.deps.Notifier.IsConnected()
	}
	writeJSON(w, http.StatusOK, health)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
