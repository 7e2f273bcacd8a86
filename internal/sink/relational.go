package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/douginoz/iceicedata/internal/db"
	"github.com/douginoz/iceicedata/internal/db/migrate"
	"github.com/douginoz/iceicedata/internal/modules/weather/repository"
	"github.com/douginoz/iceicedata/internal/modules/weather/types"
)

// RelationalSink opens the store for each record and closes it afterwards, so
// nothing is held open while the scheduler sleeps.
type RelationalSink struct {
	opts         db.Options
	descriptions map[types.AttributeKey]string
	logger       *slog.Logger
}

func NewRelationalSink(opts db.Options, logger *slog.Logger) *RelationalSink {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Logger == nil {
		opts.Logger = logger
	}
	return &RelationalSink{opts: opts, descriptions: types.Descriptions(), logger: logger}
}

func (s *RelationalSink) Name() string { return NameRelational }

// Prepare creates the store and schema and checks its integrity. It runs once
// before the first capture so that an unusable database stops the program early.
func (s *RelationalSink) Prepare(ctx context.Context) error {
	return s.withRepository(ctx, func(repo repository.WeatherRepository) error {
		return repo.CheckIntegrity(ctx)
	})
}

func (s *RelationalSink) Deliver(ctx context.Context, rec types.Record, _ types.WindVector) error {
	return s.withRepository(ctx, func(repo repository.WeatherRepository) error {
		err := repo.SaveRecord(ctx, rec, s.descriptions)
		if errors.Is(err, repository.ErrDuplicate) {
			s.logger.Info("duplicate record skipped", "station_id", rec.StationID, "timestamp_unix", rec.TimestampUnixMs)
			return fmt.Errorf("%w: %w", ErrSkipped, err)
		}
		return err
	})
}

func (s *RelationalSink) withRepository(ctx context.Context, fn func(repository.WeatherRepository) error) (err error) {
	conn, err := db.Open(ctx, s.opts)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(conn); cerr != nil && err == nil {
			err = fmt.Errorf("db close: %w", cerr)
		}
	}()

	if err := migrate.Run(ctx, conn, s.logger); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return fn(repository.NewRepository(conn, s.logger))
}
