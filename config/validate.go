package config

import (
	"errors"
	"fmt"

	"market-signals-go/fixed"
	"market-signals-go/market"
)

// ErrInvalid 用于参数验证错误。
type ErrInvalid string

func (e ErrInvalid) Error() string { return string(e) }

// Validate ensures required fields are present and every instrument can build a book.
func Validate(cfg AppConfig) error {
	if cfg.Env == "" {
		return errors.New("env is required")
	}
	if len(cfg.Instruments) == 0 {
		return errors.New("instruments config is required")
	}
	if cfg.Engine.Shards < 0 || cfg.Engine.QueueSize < 0 {
		return ErrInvalid("engine.shards/queueSize must be >= 0")
	}
	switch cfg.Sink.Kind {
	case "", SinkLog, SinkNone:
	case SinkKafka:
		if len(cfg.Sink.Brokers) == 0 || cfg.Sink.Topic == "" {
			return ErrInvalid("sink.brokers/topic is required for kafka (or MS_SINK_BROKERS)")
		}
	default:
		return fmt.Errorf("sink.kind %q is not supported", cfg.Sink.Kind)
	}

	ids := make(map[uint32]string, len(cfg.Instruments))
	for name, ic := range cfg.Instruments {
		if ic.ID == 0 {
			return fmt.Errorf("instrument %s id must be > 0", name)
		}
		if other, dup := ids[ic.ID]; dup {
			return fmt.Errorf("instrument %s reuses id %d of %s", name, ic.ID, other)
		}
		ids[ic.ID] = name
		if err := ic.validate(); err != nil {
			return fmt.Errorf("instrument %s: %w", name, err)
		}
	}
	return nil
}

func (ic InstrumentConfig) validate() error {
	tick, err := fixed.FromDecimal(ic.TickSize)
	if err != nil {
		return fmt.Errorf("tickSize: %w", err)
	}
	if tick <= 0 {
		return ErrInvalid("tickSize must be > 0")
	}
	for field, v := range map[string]string{"roiCenter": ic.ROICenter, "roiHalfWidth": ic.ROIHalfWidth} {
		if v == "" {
			continue
		}
		n, err := fixed.FromDecimal(v)
		if err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
		if n < 0 {
			return ErrInvalid(field + " must be >= 0")
		}
	}
	if _, err := market.ParseCrossingPolicy(ic.CrossingPolicy); err != nil {
		return err
	}
	if ic.VWAPWindowMs < 0 || ic.FlowWindowMs < 0 {
		return ErrInvalid("vwapWindowMs/flowWindowMs must be >= 0")
	}
	return nil
}
