package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/douginoz/iceicedata/internal/db"
	"github.com/douginoz/iceicedata/internal/modules/weather/normalize"
	"github.com/douginoz/iceicedata/internal/modules/weather/types"
)

//go:embed sql/insert-record.sql
var insertRecordSQL string

//go:embed sql/upsert-description.sql
var upsertDescriptionSQL string

//go:embed sql/count-records.sql
var countRecordsSQL string

//go:embed sql/get-latest-record.sql
var getLatestRecordSQL string

//go:embed sql/get-description.sql
var getDescriptionSQL string

// ErrDuplicate is returned when a record for the same station and timestamp is already stored.
var ErrDuplicate = errors.New("duplicate record")

type WeatherRepository interface {
	// SaveRecord inserts rec and upserts the attribute descriptions in one transaction.
	SaveRecord(ctx context.Context, rec types.Record, descriptions map[types.AttributeKey]string) error
	CountRecords(ctx context.Context, stationID string) (int, error)
	GetLatestRecord(ctx context.Context, stationID string) (*StoredRecord, error)
	GetDescription(ctx context.Context, attribute types.AttributeKey) (string, error)
	CheckIntegrity(ctx context.Context) error
}

// StoredRecord is the identifying part of a persisted row.
type StoredRecord struct {
	StationID       int64
	StationName     string
	Timestamp       string
	Timezone        string
	TimestampUnixMs *int64
}

type repositoryImpl struct {
	db     *db.DB
	logger *slog.Logger
}

func NewRepository(conn *db.DB, logger *slog.Logger) WeatherRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &repositoryImpl{db: conn, logger: logger}
}

type columnKind int

const (
	realColumn columnKind = iota
	integerColumn
	textColumn
)

var columnKinds = map[types.AttributeKey]columnKind{
	types.LightningStrikeCount:      integerColumn,
	types.LightningDetectedLast3Hrs: integerColumn,
	types.RainDurationToday:         integerColumn,
	types.RainDurationYesterday:     integerColumn,
	types.RainIntensity:             textColumn,
}

func (r *repositoryImpl) SaveRecord(ctx context.Context, rec types.Record, descriptions map[types.AttributeKey]string) error {
	args, err := insertArgs(rec)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			r.logger.Error("rollback", "error", err)
		}
	}()

	res, err := tx.ExecContext(ctx, r.db.Rebind(insertRecordSQL), args...)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert record: rows affected: %w", err)
	}

	upsert := r.db.Rebind(upsertDescriptionSQL)
	for _, k := range slices.Sorted(maps.Keys(descriptions)) {
		if _, err := tx.ExecContext(ctx, upsert, string(k), descriptions[k]); err != nil {
			return fmt.Errorf("upsert description %s: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	if inserted == 0 {
		return ErrDuplicate
	}
	return nil
}

func (r *repositoryImpl) CountRecords(ctx context.Context, stationID string) (int, error) {
	id, err := parseStationID(stationID)
	if err != nil {
		return 0, err
	}
	var n int
	err = r.db.QueryRowContext(ctx, r.db.Rebind(countRecordsSQL), id).Scan(&n)
	return n, err
}

func (r *repositoryImpl) GetLatestRecord(ctx context.Context, stationID string) (*StoredRecord, error) {
	id, err := parseStationID(stationID)
	if err != nil {
		return nil, err
	}
	var (
		out      StoredRecord
		name     sql.NullString
		ts, tz   sql.NullString
		unixMsec sql.NullInt64
	)
	err = r.db.QueryRowContext(ctx, r.db.Rebind(getLatestRecordSQL), id).
		Scan(&out.StationID, &name, &ts, &tz, &unixMsec)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out.StationName, out.Timestamp, out.Timezone = name.String, ts.String, tz.String
	if unixMsec.Valid {
		out.TimestampUnixMs = &unixMsec.Int64
	}
	return &out, nil
}

func (r *repositoryImpl) GetDescription(ctx context.Context, attribute types.AttributeKey) (string, error) {
	var d sql.NullString
	err := r.db.QueryRowContext(ctx, r.db.Rebind(getDescriptionSQL), string(attribute)).Scan(&d)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return d.String, err
}

// CheckIntegrity verifies the store before the first capture. On SQLite it runs
// quick_check and foreign_key_check; elsewhere a round trip is enough.
func (r *repositoryImpl) CheckIntegrity(ctx context.Context) error {
	if r.db.Dialect != db.SQLite {
		return r.db.PingContext(ctx)
	}

	var result string
	if err := r.db.QueryRowContext(ctx, "PRAGMA quick_check").Scan(&result); err != nil {
		return fmt.Errorf("quick_check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("quick_check: %s", result)
	}

	rows, err := r.db.QueryContext(ctx, "PRAGMA foreign_key_check")
	if err != nil {
		return fmt.Errorf("foreign_key_check: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.Error("close foreign_key_check rows", "error", err)
		}
	}()
	if rows.Next() {
		return errors.New("foreign_key_check: violations found")
	}
	return rows.Err()
}

func insertArgs(rec types.Record) ([]any, error) {
	id, err := parseStationID(rec.StationID)
	if err != nil {
		return nil, err
	}
	args := make([]any, 0, len(types.AttributeKeys)+5)
	args = append(args, id, rec.StationName)
	for _, k := range types.AttributeKeys {
		args = append(args, columnValue(k, rec.Attributes[k]))
	}
	args = append(args, textValue(rec.Timestamp), textValue(rec.Timezone))
	if rec.TimestampUnixMs != nil {
		args = append(args, *rec.TimestampUnixMs)
	} else {
		args = append(args, nil)
	}
	return args, nil
}

func parseStationID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid station id %q: %w", s, err)
	}
	return id, nil
}

// columnValue converts a measurement to the column's storage type. Values that do
// not fit the column are stored as NULL.
func columnValue(k types.AttributeKey, m types.Measurement) any {
	if m.Value == nil {
		return nil
	}
	switch columnKinds[k] {
	case textColumn:
		return m.ValueString()
	case integerColumn:
		f, ok := numeric(m)
		if !ok || f != math.Trunc(f) {
			return nil
		}
		return int64(f)
	default:
		if f, ok := numeric(m); ok {
			return f
		}
		if k == types.WindDirection {
			if d := normalize.CompassToDegrees(strings.ToUpper(m.ValueString())); d != nil {
				return *d
			}
		}
		return nil
	}
}

func numeric(m types.Measurement) (float64, bool) {
	switch v := m.Value.(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func textValue(m types.Measurement) any {
	if m.Value == nil {
		return nil
	}
	return m.ValueString()
}
