package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"market-signals-go/config"
	"market-signals-go/infrastructure/logger"
	"market-signals-go/infrastructure/monitor"
)

// BinanceFuturesWSEndpoint 默认 USDⓈ-M 合约行情地址。
const BinanceFuturesWSEndpoint = "wss://fstream.binance.com"

// MessageHandler 接收原始 ws 消息。
type MessageHandler interface {
	OnRawMessage([]byte)
}

// BinanceWSReal 订阅 combined stream，断线后按速率限制重连。
type BinanceWSReal struct {
	BaseEndpoint string
	Dialer       *websocket.Dialer
	ReadTimeout  time.Duration

	streams []string
	limiter *rate.Limiter
	logger  *logger.Logger
	monitor *monitor.Monitor
}

// NewBinanceWSReal builds a feed for the given exchange names. Depth streams are always
// subscribed; trade streams only when cfg.TradeStream is set.
func NewBinanceWSReal(cfg config.FeedConfig, names []string, log *logger.Logger, mon *monitor.Monitor) *BinanceWSReal {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = BinanceFuturesWSEndpoint
	}
	perMinute := cfg.ReconnectPerMinute
	if perMinute <= 0 {
		perMinute = 12
	}
	timeout := time.Duration(cfg.ReadTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &BinanceWSReal{
		BaseEndpoint: endpoint,
		Dialer:       websocket.DefaultDialer,
		ReadTimeout:  timeout,
		streams:      StreamNames(cfg, names),
		limiter:      rate.NewLimiter(rate.Limit(perMinute/60), 1),
		logger:       log,
		monitor:      mon,
	}
}

// StreamNames 生成 combined stream 名称，如 btcusdt@depth20@100ms。
func StreamNames(cfg config.FeedConfig, names []string) []string {
	out := make([]string, 0, 2*len(names))
	for _, n := range names {
		lower := strings.ToLower(n)
		out = append(out, lower+cfg.DepthStream)
		if cfg.TradeStream != "" {
			out = append(out, lower+cfg.TradeStream)
		}
	}
	return out
}

func (b *BinanceWSReal) Streams() []string { return b.streams }

// URL 构建 combined stream 地址。
func (b *BinanceWSReal) URL() (string, error) {
	if len(b.streams) == 0 {
		return "", fmt.Errorf("no streams subscribed")
	}
	u, err := url.Parse(b.BaseEndpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/stream"
	q := u.Query()
	q.Set("streams", strings.Join(b.streams, "/"))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Run 连接并读取消息直到 ctx 结束；断线后自动重连。
func (b *BinanceWSReal) Run(ctx context.Context, handler MessageHandler) error {
	target, err := b.URL()
	if err != nil {
		return err
	}
	for {
		if err := b.limiter.Wait(ctx); err != nil {
			return ctx.Err()
		}
		conn, _, err := b.Dialer.DialContext(ctx, target, nil)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.logger.Warn("ws dial failed", zap.String("url", target), zap.Error(err))
			continue
		}
		if b.monitor != nil {
			b.monitor.RecordWSConnection()
		}
		b.logger.Info("ws connected", zap.Int("streams", len(b.streams)))

		err = b.readLoop(ctx, conn, handler)

		if b.monitor != nil {
			b.monitor.RecordWSDisconnect()
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b.logger.Warn("ws disconnected, reconnecting", zap.Error(err))
	}
}

// readLoop 读取消息直到出错；ctx 结束时关闭连接以打断阻塞的读。
func (b *BinanceWSReal) readLoop(ctx context.Context, conn *websocket.Conn, handler MessageHandler) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(b.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(b.ReadTimeout))
	})
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return errors.New("closed by server")
			}
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(b.ReadTimeout))
		if handler != nil {
			handler.OnRawMessage(msg)
		}
	}
}
