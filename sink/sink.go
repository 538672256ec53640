// Package sink 负责把特征帧送出进程：日志、Kafka 或丢弃。
package sink

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"market-signals-go/config"
	"market-signals-go/features"
	"market-signals-go/infrastructure/logger"
	"market-signals-go/infrastructure/monitor"
)

// Sink is a FrameSink that owns resources.
type Sink interface {
	Publish(features.Frame)
	Name() string
	Close() error
}

// New builds the sink selected by cfg.Kind. Empty kind means log.
func New(cfg config.SinkConfig, log *logger.Logger, mon *monitor.Monitor) (Sink, error) {
	switch cfg.Kind {
	case "", config.SinkLog:
		return NewLogSink(log, mon), nil
	case config.SinkNone:
		return Discard{}, nil
	case config.SinkKafka:
		if len(cfg.Brokers) == 0 || cfg.Topic == "" {
			return nil, fmt.Errorf("kafka sink needs brokers and topic")
		}
		return NewKafkaSink(cfg, log, mon), nil
	default:
		return nil, fmt.Errorf("unknown sink kind %q", cfg.Kind)
	}
}

// LogSink 把每一帧写成一条 info 日志。
type LogSink struct {
	logger  *logger.Logger
	monitor *monitor.Monitor
}

func NewLogSink(log *logger.Logger, mon *monitor.Monitor) *LogSink {
	return &LogSink{logger: log, monitor: mon}
}

func (s *LogSink) Publish(f features.Frame) {
	s.logger.Info("frame",
		zap.Stringer("symbol", f.Symbol),
		zap.Time("ts", time.Unix(0, int64(f.Ts)).UTC()),
		zap.Any("features", f),
	)
	if s.monitor != nil {
		s.monitor.RecordSinkPublished(s.Name())
	}
}

func (s *LogSink) Name() string { return config.SinkLog }
func (s *LogSink) Close() error { return nil }

// Discard drops every frame.
type Discard struct{}

func (Discard) Publish(features.Frame) {}
func (Discard) Name() string           { return config.SinkNone }
func (Discard) Close() error           { return nil }

// Multi publishes each frame to every sink in order; Close closes all of them.
type Multi []Sink

func (m Multi) Publish(f features.Frame) {
	for _, s := range m {
		s.Publish(f)
	}
}

func (m Multi) Name() string {
	names := make([]string, len(m))
	for i, s := range m {
		names[i] = s.Name()
	}
	return strings.Join(names, "+")
}

func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}
