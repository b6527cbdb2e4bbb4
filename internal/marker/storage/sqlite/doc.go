// Package sqlite persists the marker tracking lifecycle to SQLite.
//
// Each acquisition (MarkerFound through MarkerLost) is one row in
// acquisitions, and every transition is appended to tracking_events. The
// schema is managed with embedded golang-migrate migrations.
package sqlite
