package monitor

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/markerlens/internal/httputil"
	"github.com/banshee-data/markerlens/internal/marker/storage/sqlite"
)

// TrackingStatus is the live tracking state exposed at /api/status.
type TrackingStatus struct {
	State             string `json:"state"`
	AcquisitionID     string `json:"acquisition_id,omitempty"`
	ConsecutiveMisses int    `json:"consecutive_misses"`
	Ticks             uint64 `json:"ticks"`
	Acquisitions      uint64 `json:"acquisitions"`
	Losses            uint64 `json:"losses"`
	PlayStarts        int    `json:"play_starts"`
	RenderedFrames    uint64 `json:"rendered_frames"`
}

// StatusSource supplies the live tracking state.
type StatusSource interface {
	TrackingStatus() TrackingStatus
}

// EventLister lists persisted tracking events.
type EventLister interface {
	RecentEvents(limit int) ([]sqlite.TrackingEvent, error)
}

// AdminRoutes attaches extra debug handlers to the server mux.
type AdminRoutes interface {
	AttachAdminRoutes(mux *http.ServeMux) error
}

// WebServerConfig configures a WebServer. Status and Events are optional.
type WebServerConfig struct {
	Address string
	Stats   *Stats
	Status  StatusSource
	Events  EventLister
	Admin   AdminRoutes
}

// WebServer serves tracking status, events and debug charts.
type WebServer struct {
	address string
	stats   *Stats
	status  StatusSource
	events  EventLister
	admin   AdminRoutes
	server  *http.Server
}

// NewWebServer creates a web server. Routes are built immediately; call
// Start to listen.
func NewWebServer(cfg WebServerConfig) (*WebServer, error) {
	if cfg.Stats == nil {
		cfg.Stats = NewStats(0)
	}
	ws := &WebServer{
		address: cfg.Address,
		stats:   cfg.Stats,
		status:  cfg.Status,
		events:  cfg.Events,
		admin:   cfg.Admin,
	}
	mux, err := ws.setupRoutes()
	if err != nil {
		return nil, err
	}
	ws.server = &http.Server{Addr: ws.address, Handler: mux}
	return ws, nil
}

// Handler returns the server's routes.
func (ws *WebServer) Handler() http.Handler { return ws.server.Handler }

// Start serves until ctx is cancelled, then shuts down gracefully.
func (ws *WebServer) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		diagf("starting HTTP server on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		opsf("HTTP server shutdown error: %v", err)
		if err := ws.server.Close(); err != nil {
			opsf("HTTP server force close error: %v", err)
		}
	}
	diagf("HTTP server stopped")
	return nil
}

func (ws *WebServer) setupRoutes() (*http.ServeMux, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", ws.handleHealth)
	mux.HandleFunc("GET /api/status", ws.handleStatus)
	mux.HandleFunc("GET /api/events", ws.handleEvents)
	mux.HandleFunc("GET /api/samples", ws.handleSamples)
	mux.HandleFunc("GET /debug/charts/mass", ws.handleMassChart)
	mux.HandleFunc("GET /debug/plots/trail.png", ws.handleTrailPlot)

	if ws.admin != nil {
		if err := ws.admin.AttachAdminRoutes(mux); err != nil {
			return nil, err
		}
	}
	return mux, nil
}


func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]string{"status": "ok"})
}

func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := struct {
		Tracking *TrackingStatus `json:"tracking,omitempty"`
		Summary  Summary         `json:"summary"`
	}{Summary: ws.stats.Summary()}
	if ws.status != nil {
		st := ws.status.TrackingStatus()
		resp.Tracking = &st
	}
	httputil.WriteJSONOK(w, resp)
}

func (ws *WebServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	if ws.events == nil {
		httputil.ServiceUnavailable(w, "event storage not configured")
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			httputil.BadRequest(w, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}
	events, err := ws.events.RecentEvents(limit)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if events == nil {
		events = []sqlite.TrackingEvent{}
	}
	httputil.WriteJSONOK(w, events)
}

func (ws *WebServer) handleSamples(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, ws.stats.Snapshot())
}
