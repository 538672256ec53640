package logger

import (
	"fmt"
	"os"
	"slices"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"market-signals-go/features"
	"market-signals-go/market"
)

// Logger 封装zap日志器，提供结构化日志功能
type Logger struct {
	*zap.Logger
	config Config
}

// Config 日志配置
type Config struct {
	Level      string   `yaml:"level"`       // debug, info, warn, error
	Outputs    []string `yaml:"outputs"`     // stdout, file
	OutputFile string   `yaml:"output_file"` // 日志文件路径
	ErrorFile  string   `yaml:"error_file"`  // 错误日志单独文件
	Format     string   `yaml:"format"`      // json 或 console
	MaxSize    int      `yaml:"max_size"`    // 单个日志文件最大MB
	MaxBackups int      `yaml:"max_backups"` // 保留的旧日志文件数
	MaxAge     int      `yaml:"max_age"`     // 保留天数
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Outputs:    []string{"stdout"},
		Format:     "json",
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     7,
	}
}

// New 创建新的Logger实例
func New(cfg Config) (*Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %s: %w", cfg.Level, err)
	}

	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	cores := []zapcore.Core{}

	if slices.Contains(cfg.Outputs, "stdout") {
		var encoder zapcore.Encoder
		if cfg.Format == "console" {
			encoder = zapcore.NewConsoleEncoder(encoderConfig)
		} else {
			encoder = zapcore.NewJSONEncoder(encoderConfig)
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level))
	}

	// 文件输出，按大小滚动
	if slices.Contains(cfg.Outputs, "file") && cfg.OutputFile != "" {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig),
			zapcore.AddSync(cfg.rotating(cfg.OutputFile)),
			level,
		))
	}

	// 错误日志单独文件
	if cfg.ErrorFile != "" {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig),
			zapcore.AddSync(cfg.rotating(cfg.ErrorFile)),
			zapcore.ErrorLevel,
		))
	}

	core := zapcore.NewTee(cores...)
	return &Logger{
		Logger: zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)),
		config: cfg,
	}, nil
}

func (c Config) rotating(path string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    c.MaxSize,
		MaxBackups: c.MaxBackups,
		MaxAge:     c.MaxAge,
		Compress:   true,
	}
}

// NewWithCore wraps an existing core; tests pass a zaptest observer here.
func NewWithCore(core zapcore.Core) *Logger {
	return &Logger{Logger: zap.New(core), config: DefaultConfig()}
}

// NewNop 返回丢弃所有输出的日志器。
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop(), config: DefaultConfig()}
}

// WithFields 添加字段返回新的logger
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	zapFields := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		zapFields = append(zapFields, zap.Any(k, v))
	}
	return &Logger{
		Logger: l.Logger.With(zapFields...),
		config: l.config,
	}
}

// LogReject 记录被拒绝的深度更新。
func (l *Logger) LogReject(u market.DepthUpdate, err error) {
	l.Warn("depth_rejected",
		zap.Stringer("symbol", u.Symbol),
		zap.Stringer("side", u.Side),
		zap.Stringer("price", u.Price),
		zap.Stringer("qty", u.Qty),
		zap.Int64("update_ts", int64(u.Ts)),
		zap.String("reason", market.RejectReason(err)),
		zap.Error(err),
	)
}

// LogCrossing records a crossed update and how the book's policy handled it.
func (l *Logger) LogCrossing(ev market.CrossingEvent) {
	l.Info("book_crossed",
		zap.Stringer("symbol", ev.Symbol),
		zap.String("policy", ev.Policy.String()),
		zap.Stringer("side", ev.Side),
		zap.Stringer("price", ev.Price),
		zap.Int("truncated", ev.Truncated),
	)
}

// LogFrame 在 debug 级别输出特征帧。
func (l *Logger) LogFrame(f features.Frame) {
	if ce := l.Check(zapcore.DebugLevel, "feature_frame"); ce != nil {
		ce.Write(
			zap.Stringer("symbol", f.Symbol),
			zap.Int64("frame_ts", int64(f.Ts)),
			zap.Stringer("microprice", f.Microprice),
			zap.Int64("spread_bps", f.SpreadBps),
			zap.Int64("imbalance", f.Imbalance),
			zap.Int64("toxicity", f.FlowToxicity),
			zap.Int64("price_trend", f.PriceTrend),
			zap.Int64("volatility", f.VolatilityForecast),
			zap.Stringer("regime", f.Regime),
		)
	}
}

// LogEvent 记录通用生命周期事件
func (l *Logger) LogEvent(event string, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["event"] = event
	fields["ts"] = time.Now().UTC().Format(time.RFC3339Nano)

	zapFields := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		zapFields = append(zapFields, zap.Any(k, v))
	}
	l.Info("lifecycle_event", zapFields...)
}

// LogError 记录错误并附带上下文
func (l *Logger) LogError(err error, context map[string]interface{}) {
	if context == nil {
		context = make(map[string]interface{})
	}
	context["error"] = err.Error()
	context["ts"] = time.Now().UTC().Format(time.RFC3339Nano)

	zapFields := make([]zap.Field, 0, len(context))
	for k, v := range context {
		zapFields = append(zapFields, zap.Any(k, v))
	}
	l.Error("error_event", zapFields...)
}

// Close 关闭日志器
func (l *Logger) Close() error {
	return l.Sync()
}
