package monitor

import (
	"bytes"
	"encoding/json"
	"errors"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/markerlens/internal/marker/storage/sqlite"
)

func TestStats_RingBuffer(t *testing.T) {
	t.Parallel()
	s := NewStats(3)
	assert.Empty(t, s.Snapshot())
	assert.Equal(t, Summary{}, s.Summary())

	for i := 1; i <= 5; i++ {
		s.Record(TickSample{Tick: uint64(i), Found: i%2 == 1, Duration: time.Duration(i) * time.Millisecond})
	}

	snap := s.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, []uint64{3, 4, 5}, []uint64{snap[0].Tick, snap[1].Tick, snap[2].Tick})
	assert.Equal(t, uint64(5), s.Total())

	sum := s.Summary()
	assert.Equal(t, 3, sum.Samples)
	assert.Equal(t, 2, sum.Found)
	assert.InDelta(t, 2.0/3.0, sum.FoundRatio, 1e-9)
	assert.Equal(t, 4*time.Millisecond, sum.MeanDuration)
	assert.Equal(t, 5*time.Millisecond, sum.MaxDuration)
	assert.Equal(t, uint64(5), sum.LastTick)
}

func TestStats_CountsErrors(t *testing.T) {
	t.Parallel()
	s := NewStats(0)
	s.Record(TickSample{Tick: 1})
	s.Record(TickSample{Tick: 2, Err: "boom"})
	assert.Equal(t, 1, s.Summary().Errors)
}

type fakeStatus struct{}

func (fakeStatus) TrackingStatus() TrackingStatus {
	return TrackingStatus{State: "tracking", AcquisitionID: "abc", Ticks: 12, Acquisitions: 1}
}

type fakeEvents struct {
	events []sqlite.TrackingEvent
	err    error
	limit  int
}

func (f *fakeEvents) RecentEvents(limit int) ([]sqlite.TrackingEvent, error) {
	f.limit = limit
	return f.events, f.err
}

func newTestServer(t *testing.T, cfg WebServerConfig) http.Handler {
	t.Helper()
	ws, err := NewWebServer(cfg)
	require.NoError(t, err)
	return ws.Handler()
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestWebServer_Status(t *testing.T) {
	t.Parallel()
	stats := NewStats(10)
	stats.Record(TickSample{Tick: 1, Found: true})
	h := newTestServer(t, WebServerConfig{Stats: stats, Status: fakeStatus{}})

	w := get(h, "/api/status")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Tracking TrackingStatus `json:"tracking"`
		Summary  Summary        `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "tracking", body.Tracking.State)
	assert.Equal(t, uint64(12), body.Tracking.Ticks)
	assert.Equal(t, 1, body.Summary.Found)

	assert.Equal(t, http.StatusOK, get(h, "/health").Code)
}

func TestWebServer_Events(t *testing.T) {
	t.Parallel()

	t.Run("not configured", func(t *testing.T) {
		h := newTestServer(t, WebServerConfig{})
		assert.Equal(t, http.StatusServiceUnavailable, get(h, "/api/events").Code)
	})

	t.Run("lists events", func(t *testing.T) {
		events := &fakeEvents{events: []sqlite.TrackingEvent{{EventID: 2, Kind: "marker_lost"}, {EventID: 1, Kind: "marker_found"}}}
		h := newTestServer(t, WebServerConfig{Events: events})

		w := get(h, "/api/events?limit=5")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 5, events.limit)
		var got []sqlite.TrackingEvent
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, events.events, got)
	})

	t.Run("empty list is an array", func(t *testing.T) {
		h := newTestServer(t, WebServerConfig{Events: &fakeEvents{}})
		w := get(h, "/api/events")
		assert.Equal(t, "[]", strings.TrimSpace(w.Body.String()))
	})

	t.Run("bad limit", func(t *testing.T) {
		h := newTestServer(t, WebServerConfig{Events: &fakeEvents{}})
		assert.Equal(t, http.StatusBadRequest, get(h, "/api/events?limit=abc").Code)
		assert.Equal(t, http.StatusBadRequest, get(h, "/api/events?limit=0").Code)
	})

	t.Run("storage error", func(t *testing.T) {
		h := newTestServer(t, WebServerConfig{Events: &fakeEvents{err: errors.New("db closed")}})
		w := get(h, "/api/events")
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Contains(t, w.Body.String(), "db closed")
	})
}

func TestWebServer_MassChart(t *testing.T) {
	t.Parallel()
	stats := NewStats(10)
	h := newTestServer(t, WebServerConfig{Stats: stats})
	assert.Equal(t, http.StatusNotFound, get(h, "/debug/charts/mass").Code)

	for i := 0; i < 5; i++ {
		stats.Record(TickSample{Tick: uint64(i), PixelMass: 100 * i, Detections: 1})
	}
	w := get(h, "/debug/charts/mass")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "Marker pixel mass")
}

func TestWebServer_TrailPlot(t *testing.T) {
	t.Parallel()
	stats := NewStats(10)
	for i := 0; i < 4; i++ {
		stats.Record(TickSample{Tick: uint64(i), Found: true, Localized: true, CentroidX: float64(10 * i), CentroidY: 20})
	}
	h := newTestServer(t, WebServerConfig{Stats: stats})

	w := get(h, "/debug/plots/trail.png")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	_, err := png.Decode(w.Body)
	assert.NoError(t, err)
}

func TestWriteTrailPNG_Empty(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	require.NoError(t, WriteTrailPNG(&buf, nil, 2*vg.Inch, 2*vg.Inch))
	_, err := png.Decode(&buf)
	assert.NoError(t, err)
}

type failingAdmin struct{}

func (failingAdmin) AttachAdminRoutes(*http.ServeMux) error { return errors.New("no tailsql") }

func TestNewWebServer_AdminError(t *testing.T) {
	t.Parallel()
	_, err := NewWebServer(WebServerConfig{Admin: failingAdmin{}})
	assert.ErrorContains(t, err, "no tailsql")
}
