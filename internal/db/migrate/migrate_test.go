package migrate

import (
	"context"
	"testing"

	"github.com/douginoz/iceicedata/internal/db"
)

func openTestDB(t *testing.T) *db.DB {
	t.Helper()
	conn, err := db.Open(context.Background(), db.Options{Path: ":memory:"})
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(conn) })
	return conn
}

func TestRun_CreatesSchemaAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	conn := openTestDB(t)

	for i := 0; i < 2; i++ {
		if err := Run(ctx, conn, nil); err != nil {
			t.Fatalf("Run #%d: %v", i+1, err)
		}
	}

	var n int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&n); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if n != 1 {
		t.Errorf("schema_migrations rows = %d, want 1", n)
	}

	for _, table := range []string{"weather_data", "attribute_description"} {
		var name string
		err := conn.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}

	for _, index := range []string{"idx_weather_data_timestamp", "idx_weather_data_timestamp_unix"} {
		var tbl string
		err := conn.QueryRow(`SELECT tbl_name FROM sqlite_master WHERE type = 'index' AND name = ?`, index).Scan(&tbl)
		if err != nil {
			t.Errorf("index %s missing: %v", index, err)
			continue
		}
		if tbl != "weather_data" {
			t.Errorf("index %s is on %s, want weather_data", index, tbl)
		}
	}
}

func TestPendingMigrations_BothDialects(t *testing.T) {
	for _, d := range []db.Dialect{db.SQLite, db.Postgres} {
		got, err := pendingMigrations(d, map[string]bool{})
		if err != nil {
			t.Fatalf("pendingMigrations(%s): %v", d, err)
		}
		if len(got) == 0 || got[0].version != "0001" {
			t.Errorf("pendingMigrations(%s) = %+v, want 0001 first", d, got)
		}

		none, err := pendingMigrations(d, map[string]bool{"0001": true})
		if err != nil {
			t.Fatalf("pendingMigrations(%s, applied): %v", d, err)
		}
		for _, m := range none {
			if m.version == "0001" {
				t.Errorf("applied migration 0001 returned as pending for %s", d)
			}
		}
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		in          string
		wantVersion string
		wantName    string
		wantOK      bool
	}{
		{in: "0001_weather_schema.sql", wantVersion: "0001", wantName: "weather_schema", wantOK: true},
		{in: "12_short.sql"},
		{in: "0002_missing_ext"},
		{in: "README.md"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			v, n, ok := parseMigrationFilename(tt.in)
			if ok != tt.wantOK || v != tt.wantVersion || n != tt.wantName {
				t.Errorf("parseMigrationFilename(%q) = %q, %q, %v", tt.in, v, n, ok)
			}
		})
	}
}
