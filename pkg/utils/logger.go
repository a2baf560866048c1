package utils

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogConfig - настройки логирования
type LogConfig struct {
	// Level: debug, info, warn, error, fatal
	Level string

	// Format: json или text
	Format string

	// Output: путь к файлу, пусто = stderr
	Output string

	// Development включает подробный вывод и caller
	Development bool
}

// Logger - обертка над zap с дополнительными конструкторами полей.
// Встроенный *zap.Logger дает доступ ко всем стандартным методам.
type Logger struct {
	*zap.Logger
	sugar *zap.SugaredLogger
}

// InitLogger создает и настраивает logger.
// Невалидные значения уровня и формата откатываются к info/json,
// недоступный файл вывода откатывается к stderr.
func InitLogger(cfg LogConfig) *Logger {
	level := parseLevel(cfg.Level)

	var encoderCfg zapcore.EncoderConfig
	if cfg.Development {
		encoderCfg = zap.NewDevelopmentEncoderConfig()
	} else {
		encoderCfg = zap.NewProductionEncoderConfig()
		encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	var encoder zapcore.Encoder
	switch strings.ToLower(cfg.Format) {
	case "text", "console":
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	default:
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	sink := zapcore.AddSync(os.Stderr)
	if cfg.Output != "" {
		file, err := os.OpenFile(cfg.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err == nil {
			sink = zapcore.AddSync(file)
		}
	}

	core := zapcore.NewCore(encoder, sink, level)

	opts := []zap.Option{zap.AddCaller()}
	if cfg.Development {
		opts = append(opts, zap.Development())
	}

	zl := zap.New(core, opts...)
	return &Logger{
		Logger: zl,
		sugar:  zl.Sugar(),
	}
}

// parseLevel преобразует строку в уровень zap, по умолчанию info
func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// With возвращает дочерний logger с дополнительными полями
func (l *Logger) With(fields ...zap.Field) *Logger {
	zl := l.Logger.With(fields...)
	return &Logger{Logger: zl, sugar: zl.Sugar()}
}

// WithComponent возвращает logger с полем component
func (l *Logger) WithComponent(component string) *Logger {
	return l.With(Component(component))
}

// WithVenue возвращает logger с полем venue
func (l *Logger) WithVenue(venue string) *Logger {
	return l.With(Venue(venue))
}

// WithSymbol возвращает logger с полем symbol
func (l *Logger) WithSymbol(symbol string) *Logger {
	return l.With(Symbol(symbol))
}

// WithOrderID возвращает logger с полем order_id
func (l *Logger) WithOrderID(orderID int64) *Logger {
	return l.With(OrderID(orderID))
}

// Sugar возвращает SugaredLogger для printf-style логирования
func (l *Logger) Sugar() *zap.SugaredLogger {
	return l.sugar
}

// ============================================================
// Глобальный logger
// ============================================================

var (
	globalMu     sync.Mutex
	globalLogger *Logger
)

// InitGlobalLogger инициализирует глобальный logger из конфигурации
func InitGlobalLogger(cfg LogConfig) *Logger {
	logger := InitLogger(cfg)
	SetGlobalLogger(logger)
	return logger
}

// SetGlobalLogger устанавливает глобальный logger
func SetGlobalLogger(logger *Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = logger
}

// GetGlobalLogger возвращает глобальный logger, создавая дефолтный при необходимости
func GetGlobalLogger() *Logger {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger = InitLogger(LogConfig{})
	}
	return globalLogger
}

// L - короткий доступ к глобальному logger
func L() *Logger {
	return GetGlobalLogger()
}

// Глобальные функции логирования

func Debug(msg string, fields ...zap.Field) { L().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { L().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { L().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { L().Error(msg, fields...) }
func Fatal(msg string, fields ...zap.Field) { L().Fatal(msg, fields...) }

func Debugf(template string, args ...interface{}) { L().sugar.Debugf(template, args...) }
func Infof(template string, args ...interface{})  { L().sugar.Infof(template, args...) }
func Warnf(template string, args ...interface{})  { L().sugar.Warnf(template, args...) }
func Errorf(template string, args ...interface{}) { L().sugar.Errorf(template, args...) }

// ============================================================
// Конструкторы полей
// ============================================================

// Venue - поле с именем площадки
func Venue(venue string) zap.Field { return zap.String("venue", venue) }

// Symbol - поле с торговым инструментом
func Symbol(symbol string) zap.Field { return zap.String("symbol", symbol) }

// OrderID - поле с внутренним id ордера
func OrderID(id int64) zap.Field { return zap.Int64("order_id", id) }

// ExternalRef - поле со ссылкой ордера на стороне площадки
func ExternalRef(ref string) zap.Field { return zap.String("external_ref", ref) }

// FillID - поле с id исполнения
func FillID(id int64) zap.Field { return zap.Int64("fill_id", id) }

// Price - поле с ценой
func Price(price float64) zap.Field { return zap.Float64("price", price) }

// Quantity - поле с количеством
func Quantity(qty float64) zap.Field { return zap.Float64("quantity", qty) }

// Side - поле с направлением сделки
func Side(side string) zap.Field { return zap.String("side", side) }

// Status - поле со статусом ордера
func Status(status string) zap.Field { return zap.String("status", status) }

// Latency - поле с задержкой в миллисекундах
func Latency(ms float64) zap.Field { return zap.Float64("latency_ms", ms) }

// RequestID - поле с id запроса
func RequestID(id string) zap.Field { return zap.String("request_id", id) }

// Component - поле с именем компонента
func Component(name string) zap.Field { return zap.String("component", name) }

// Переэкспорт стандартных конструкторов zap

func String(key, value string) zap.Field       { return zap.String(key, value) }
func Int(key string, value int) zap.Field      { return zap.Int(key, value) }
func Int64(key string, value int64) zap.Field  { return zap.Int64(key, value) }
func Float64(key string, v float64) zap.Field  { return zap.Float64(key, v) }
func Bool(key string, value bool) zap.Field    { return zap.Bool(key, value) }
func Err(err error) zap.Field                  { return zap.Error(err) }
func Any(key string, value interface{}) zap.Field { return zap.Any(key, value) }
