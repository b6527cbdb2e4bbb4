package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/banshee-data/markerlens/internal/httputil"
	"github.com/banshee-data/markerlens/internal/marker/l4tracking"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA temp_store=MEMORY",
	"PRAGMA foreign_keys=ON",
}

// Acquisition is one found-to-lost interval. Lost fields are nil while the
// acquisition is open.
type Acquisition struct {
	AcquisitionID  string  `json:"acquisition_id"`
	FoundUnixNanos int64   `json:"found_unix_nanos"`
	LostUnixNanos  *int64  `json:"lost_unix_nanos,omitempty"`
	FoundTick      int64   `json:"found_tick"`
	LostTick       *int64  `json:"lost_tick,omitempty"`
	CentroidX      float64 `json:"centroid_x"`
	CentroidY      float64 `json:"centroid_y"`
	PixelMass      int     `json:"pixel_mass"`
}

// TrackingEvent is one persisted lifecycle transition.
type TrackingEvent struct {
	EventID       int64  `json:"event_id"`
	AcquisitionID string `json:"acquisition_id"`
	Kind          string `json:"kind"`
	Tick          int64  `json:"tick"`
	TSUnixNanos   int64  `json:"ts_unix_nanos"`
}

// Store records tracking events in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the database at path and applies the
// connection pragmas. Call MigrateUp before use.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// A single connection keeps pragmas and in-memory databases consistent.
	db.SetMaxOpenConns(1)

	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("execute %q: %w", p, err)
		}
	}
	return &Store{db: db, path: path}, nil
}

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// MigrateUp applies all pending embedded migrations.
func (s *Store) MigrateUp() error {
	m, err := s.newMigrate()
	if err != nil {
		return err
	}
	// m is not closed: that would close s.db.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// MigrateVersion returns the applied schema version; 0 when none.
func (s *Store) MigrateVersion() (uint, bool, error) {
	m, err := s.newMigrate()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func (s *Store) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = migrateLogger{}
	return m, nil
}

// migrateLogger routes golang-migrate output to the diag stream.
type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...interface{}) { diagf("[migrate] "+format, v...) }
func (migrateLogger) Verbose() bool                          { return false }

// HandleTrackingEvent implements l4tracking.Subscriber. Write failures are
// logged; the render loop is never blocked on storage errors.
func (s *Store) HandleTrackingEvent(ev l4tracking.Event) {
	if err := s.Record(context.Background(), ev); err != nil {
		opsf("record %s for %s: %v", ev.Kind, ev.AcquisitionID, err)
	}
}

// Record persists one event, opening or closing its acquisition.
func (s *Store) Record(ctx context.Context, ev l4tracking.Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	id := ev.AcquisitionID.String()
	ts := ev.Timestamp.UnixNano()

	switch ev.Kind {
	case l4tracking.MarkerFound:
		var cx, cy float64
		var mass int
		if ev.Detection != nil {
			cx, cy, mass = ev.Detection.Centroid.X, ev.Detection.Centroid.Y, ev.Detection.PixelMass
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO acquisitions (
				acquisition_id, found_unix_nanos, found_tick,
				centroid_x, centroid_y, pixel_mass
			) VALUES (?, ?, ?, ?, ?, ?)
		`, id, ts, int64(ev.Tick), cx, cy, mass)
		if err != nil {
			return fmt.Errorf("insert acquisition: %w", err)
		}
	case l4tracking.MarkerLost:
		res, err := tx.ExecContext(ctx, `
			UPDATE acquisitions SET lost_unix_nanos = ?, lost_tick = ?
			WHERE acquisition_id = ? AND lost_unix_nanos IS NULL
		`, ts, int64(ev.Tick), id)
		if err != nil {
			return fmt.Errorf("close acquisition: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("no open acquisition %s", id)
		}
	default:
		return fmt.Errorf("unknown event kind %q", ev.Kind)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tracking_events (acquisition_id, kind, tick, ts_unix_nanos)
		VALUES (?, ?, ?, ?)
	`, id, string(ev.Kind), int64(ev.Tick), ts)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return tx.Commit()
}

// RecentEvents returns up to limit events, newest first.
func (s *Store) RecentEvents(limit int) ([]TrackingEvent, error) {
	rows, err := s.db.Query(`
		SELECT event_id, acquisition_id, kind, tick, ts_unix_nanos
		FROM tracking_events
		ORDER BY event_id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []TrackingEvent
	for rows.Next() {
		var e TrackingEvent
		if err := rows.Scan(&e.EventID, &e.AcquisitionID, &e.Kind, &e.Tick, &e.TSUnixNanos); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Acquisitions returns up to limit acquisitions, most recently found first.
func (s *Store) Acquisitions(limit int) ([]Acquisition, error) {
	rows, err := s.db.Query(`
		SELECT acquisition_id, found_unix_nanos, lost_unix_nanos,
		       found_tick, lost_tick, centroid_x, centroid_y, pixel_mass
		FROM acquisitions
		ORDER BY found_unix_nanos DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query acquisitions: %w", err)
	}
	defer rows.Close()

	var out []Acquisition
	for rows.Next() {
		var a Acquisition
		var lostNanos, lostTick sql.NullInt64
		if err := rows.Scan(&a.AcquisitionID, &a.FoundUnixNanos, &lostNanos,
			&a.FoundTick, &lostTick, &a.CentroidX, &a.CentroidY, &a.PixelMass); err != nil {
			return nil, fmt.Errorf("scan acquisition: %w", err)
		}
		if lostNanos.Valid {
			a.LostUnixNanos = &lostNanos.Int64
		}
		if lostTick.Valid {
			a.LostTick = &lostTick.Int64
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// PruneEvents deletes closed acquisitions lost before cutoff, together with
// their events. Open acquisitions are kept regardless of age.
func (s *Store) PruneEvents(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`
		DELETE FROM acquisitions
		WHERE lost_unix_nanos IS NOT NULL AND lost_unix_nanos < ?
	`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune acquisitions: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		diagf("pruned %d acquisitions lost before %s", n, cutoff.Format(time.RFC3339))
	}
	return n, nil
}

// AttachAdminRoutes mounts the tsweb debug index and a tailsql console for
// this database under /debug/.
func (s *Store) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://"+s.path, s.db, &tailsql.DBOptions{
		Label: "Tracking events",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())
	debug.Handle("tracking-stats", "Acquisition and event counts", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		counts, err := s.Counts()
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		httputil.WriteJSONOK(w, counts)
	}))
	return nil
}

// Counts summarises table sizes.
type Counts struct {
	Acquisitions     int64 `json:"acquisitions"`
	OpenAcquisitions int64 `json:"open_acquisitions"`
	Events           int64 `json:"events"`
}

// Counts returns the current table sizes.
func (s *Store) Counts() (Counts, error) {
	var c Counts
	err := s.db.QueryRow(`
		SELECT
			(SELECT COUNT(*) FROM acquisitions),
			(SELECT COUNT(*) FROM acquisitions WHERE lost_unix_nanos IS NULL),
			(SELECT COUNT(*) FROM tracking_events)
	`).Scan(&c.Acquisitions, &c.OpenAcquisitions, &c.Events)
	if err != nil {
		return Counts{}, fmt.Errorf("count rows: %w", err)
	}
	return c, nil
}
