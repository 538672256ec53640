package alert

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"market-signals-go/infrastructure/logger"
)

// LogChannel 把告警写入结构化日志
type LogChannel struct {
	logger *logger.Logger
	name   string
}

// NewLogChannel 创建日志告警通道
func NewLogChannel(name string, log *logger.Logger) *LogChannel {
	return &LogChannel{logger: log, name: name}
}

func (c *LogChannel) Send(a Alert) error {
	lvl := zapcore.InfoLevel
	switch a.Level {
	case LevelWarning:
		lvl = zapcore.WarnLevel
	case LevelCritical:
		lvl = zapcore.ErrorLevel
	}
	fields := make([]zap.Field, 0, len(a.Fields)+3)
	fields = append(fields,
		zap.String("alert", a.Message),
		zap.String("level", string(a.Level)),
		zap.Time("at", a.Timestamp),
	)
	if a.Symbol != 0 {
		fields = append(fields, zap.Stringer("symbol", a.Symbol))
	}
	for k, v := range a.Fields {
		fields = append(fields, zap.Any(k, v))
	}
	if ce := c.logger.Check(lvl, "alert"); ce != nil {
		ce.Write(fields...)
	}
	return nil
}

func (c *LogChannel) Name() string { return c.name }
