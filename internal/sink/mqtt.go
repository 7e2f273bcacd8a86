package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/douginoz/iceicedata/internal/modules/weather/types"
	"github.com/douginoz/iceicedata/internal/mqtt"
)

// Publisher is the part of the MQTT client the sink drives.
type Publisher interface {
	Connect(ctx context.Context) error
	Publish(ctx context.Context, topic string, payload []byte, retained bool) error
	Disconnect()
}

type MQTTOptions struct {
	Client mqtt.Options
	Root   string
	Retain bool

	PublishRecord bool
	Windrose      bool
	// WindroseTopic, when set, is used verbatim instead of WindroseRoot + identifier.
	WindroseTopic string
	WindroseRoot  string
}

type MQTTSink struct {
	opts         MQTTOptions
	newPublisher func() Publisher
	logger       *slog.Logger
}

func NewMQTTSink(o MQTTOptions, logger *slog.Logger) *MQTTSink {
	if logger == nil {
		logger = slog.Default()
	}
	s := &MQTTSink{opts: o, logger: logger}
	s.newPublisher = func() Publisher { return mqtt.NewClient(o.Client, logger) }
	return s
}

// WithPublisher replaces the client factory.
func (s *MQTTSink) WithPublisher(f func() Publisher) *MQTTSink {
	s.newPublisher = f
	return s
}

func (s *MQTTSink) Name() string { return NameMQTT }

// RecordTopic is "<root><id> - <name>".
func (s *MQTTSink) RecordTopic(rec types.Record) string {
	return s.opts.Root + rec.Identifier()
}

func (s *MQTTSink) WindroseTopic(rec types.Record) string {
	if s.opts.WindroseTopic != "" {
		return s.opts.WindroseTopic
	}
	return s.opts.WindroseRoot + rec.Identifier()
}

func (s *MQTTSink) Deliver(ctx context.Context, rec types.Record, wind types.WindVector) error {
	if !s.opts.PublishRecord && !s.opts.Windrose {
		return nil
	}

	pub := s.newPublisher()
	defer pub.Disconnect()

	if err := pub.Connect(ctx); err != nil {
		return err
	}

	var errs []error
	if s.opts.PublishRecord {
		payload, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode record: %w", err)
		}
		topic := s.RecordTopic(rec)
		if err := pub.Publish(ctx, topic, payload, s.opts.Retain); err != nil {
			errs = append(errs, err)
		} else {
			s.logger.Info("published record", "topic", topic, "station_id", rec.StationID)
		}
	}
	if s.opts.Windrose {
		payload, err := json.Marshal(wind)
		if err != nil {
			return fmt.Errorf("encode wind: %w", err)
		}
		topic := s.WindroseTopic(rec)
		if err := pub.Publish(ctx, topic, payload, s.opts.Retain); err != nil {
			errs = append(errs, err)
		} else {
			s.logger.Info("published windrose", "topic", topic, "station_id", rec.StationID)
		}
	}
	return errors.Join(errs...)
}
