package sink

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"market-signals-go/config"
	"market-signals-go/features"
	"market-signals-go/infrastructure/logger"
	"market-signals-go/infrastructure/monitor"
)

const maxBatch = 256

// messageWriter is the subset of *kafka.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes frames as JSON keyed by symbol, so one symbol's frames stay on one
// partition in order. Publish never blocks: when the buffer is full the frame is dropped
// and counted.
type KafkaSink struct {
	writer  messageWriter
	ch      chan features.Frame
	logger  *logger.Logger
	monitor *monitor.Monitor

	dropped atomic.Uint64
	// mu orders sends against Close: once closed is set no frame can enter ch, so run's
	// final drain sees everything that was accepted.
	mu     sync.RWMutex
	closed bool
	stop   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// NewKafkaSink 创建 Kafka 输出并启动后台写协程。
func NewKafkaSink(cfg config.SinkConfig, log *logger.Logger, mon *monitor.Monitor) *KafkaSink {
	batchTimeout := time.Duration(cfg.BatchTimeoutMs) * time.Millisecond
	if batchTimeout <= 0 {
		batchTimeout = 50 * time.Millisecond
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: batchTimeout,
	}
	log.Info("kafka sink initialized", zap.Strings("brokers", cfg.Brokers), zap.String("topic", cfg.Topic))
	return newKafkaSink(w, cfg.Buffer, log, mon)
}

func newKafkaSink(w messageWriter, buffer int, log *logger.Logger, mon *monitor.Monitor) *KafkaSink {
	if buffer <= 0 {
		buffer = 1024
	}
	s := &KafkaSink{
		writer:  w,
		ch:      make(chan features.Frame, buffer),
		logger:  log,
		monitor: mon,
		stop:    make(chan struct{}),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

func (s *KafkaSink) Name() string { return config.SinkKafka }

// Dropped 返回因缓冲区满或已关闭而丢弃的帧数。
func (s *KafkaSink) Dropped() uint64 { return s.dropped.Load() }

func (s *KafkaSink) Publish(f features.Frame) {
	s.mu.RLock()
	accepted := false
	if !s.closed {
		select {
		case s.ch <- f:
			accepted = true
		default:
		}
	}
	s.mu.RUnlock()
	if !accepted {
		s.drop()
	}
}

func (s *KafkaSink) drop() {
	s.dropped.Add(1)
	if s.monitor != nil {
		s.monitor.RecordSinkDropped(s.Name())
	}
}

func (s *KafkaSink) run() {
	defer s.wg.Done()
	batch := make([]kafka.Message, 0, maxBatch)
	for {
		select {
		case <-s.stop:
			// 关闭前把缓冲区里的帧写完
			for {
				select {
				case f := <-s.ch:
					batch = s.append(batch, f)
				default:
					s.flush(batch)
					return
				}
			}
		case f := <-s.ch:
			batch = s.append(batch, f)
		drain:
			for len(batch) < maxBatch {
				select {
				case f := <-s.ch:
					batch = s.append(batch, f)
				default:
					break drain
				}
			}
			s.flush(batch)
			batch = batch[:0]
		}
	}
}

func (s *KafkaSink) append(batch []kafka.Message, f features.Frame) []kafka.Message {
	data, err := json.Marshal(f)
	if err != nil {
		s.logger.Warn("marshal frame failed", zap.Error(err))
		return batch
	}
	return append(batch, kafka.Message{Key: []byte(f.Symbol.String()), Value: data})
}

func (s *KafkaSink) flush(batch []kafka.Message) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.writer.WriteMessages(ctx, batch...); err != nil {
		s.logger.Warn("kafka write failed", zap.Int("messages", len(batch)), zap.Error(err))
		for range batch {
			s.drop()
		}
		return
	}
	if s.monitor != nil {
		for range batch {
			s.monitor.RecordSinkPublished(s.Name())
		}
	}
}

// Close 停止接收、写完缓冲区后关闭 writer。
func (s *KafkaSink) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.stop)
		s.mu.Unlock()
		s.wg.Wait()
		err = s.writer.Close()
	})
	return err
}
