package utils

// logger.go - структурированное логирование на базе zap
//
// Назначение:
// Единая точка инициализации логгера для всех компонентов сервиса.
// Поддерживает JSON и текстовый формат, вывод в файл с fallback на stderr,
// глобальный логгер для кода без внедрённых зависимостей.

import (
	"os"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogConfig - конфигурация логгера.
type LogConfig struct {
	Level       string // debug, info, warn, error, fatal
	Format      string // json или text
	Output      string // путь к файлу; пусто = stdout
	Development bool   // человекочитаемые стектрейсы, caller
}

// Logger - обёртка над zap.Logger с sugar-вариантом для printf-стиля.
type Logger struct {
	*zap.Logger
	sugar *zap.SugaredLogger
}

var (
	globalMu     sync.RWMutex
	globalLogger *Logger
)

// InitLogger создаёт логгер по конфигурации. Никогда не возвращает nil:
// при некорректном Output пишет в stderr, при пустом уровне использует info.
func InitLogger(cfg LogConfig) *Logger {
	level := parseLevel(cfg.Level)

	var encoderCfg zapcore.EncoderConfig
	if cfg.Development {
		encoderCfg = zap.NewDevelopmentEncoderConfig()
	} else {
		encoderCfg = zap.NewProductionEncoderConfig()
		encoderCfg.TimeKey = "ts"
		encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	var encoder zapcore.Encoder
	if strings.ToLower(cfg.Format) == "json" {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	}

	var sink zapcore.WriteSyncer
	switch cfg.Output {
	case "", "stdout":
		sink = zapcore.AddSync(os.Stdout)
	case "stderr":
		sink = zapcore.AddSync(os.Stderr)
	default:
		f, err := os.OpenFile(cfg.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			// Файл недоступен - не падаем, пишем в stderr.
			sink = zapcore.AddSync(os.Stderr)
		} else {
			sink = zapcore.AddSync(f)
		}
	}

	core := zapcore.NewCore(encoder, sink, level)

	opts := []zap.Option{zap.AddCaller(), zap.AddCallerSkip(0)}
	if cfg.Development {
		opts = append(opts, zap.Development())
	}

	zl := zap.New(core, opts...)
	return &Logger{Logger: zl, sugar: zl.Sugar()}
}

// parseLevel разбирает строковый уровень. Неизвестные значения = info.
func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// ============================================================
// Глобальный логгер
// ============================================================

// GetGlobalLogger возвращает глобальный логгер, лениво создавая его
// с настройками по умолчанию при первом обращении.
func GetGlobalLogger() *Logger {
	globalMu.RLock()
	l := globalLogger
	globalMu.RUnlock()
	if l != nil {
		return l
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger = InitLogger(LogConfig{})
	}
	return globalLogger
}

// L - короткий алиас GetGlobalLogger.
func L() *Logger {
	return GetGlobalLogger()
}

// InitGlobalLogger создаёт логгер по конфигурации и делает его глобальным.
func InitGlobalLogger(cfg LogConfig) *Logger {
	l := InitLogger(cfg)
	SetGlobalLogger(l)
	return l
}

// SetGlobalLogger подменяет глобальный логгер (используется в тестах).
func SetGlobalLogger(l *Logger) {
	globalMu.Lock()
	globalLogger = l
	globalMu.Unlock()
}

// ============================================================
// Методы Logger
// ============================================================

// With возвращает новый логгер с добавленными полями.
func (l *Logger) With(fields ...zap.Field) *Logger {
	zl := l.Logger.With(fields...)
	return &Logger{Logger: zl, sugar: zl.Sugar()}
}

// WithComponent помечает все записи именем компонента.
func (l *Logger) WithComponent(name string) *Logger {
	return l.With(zap.String("component", name))
}

// WithAccount помечает записи меткой аккаунта биржи.
func (l *Logger) WithAccount(label string) *Logger {
	return l.With(zap.String("account", label))
}

// WithTransaction помечает записи идентификатором сделки.
func (l *Logger) WithTransaction(id int64) *Logger {
	return l.With(zap.Int64("transaction_id", id))
}

// WithOrder помечает записи идентификатором ордера на бирже.
func (l *Logger) WithOrder(orderID string) *Logger {
	return l.With(zap.String("order_id", orderID))
}

// Sugar возвращает sugar-логгер для printf-стиля.
func (l *Logger) Sugar() *zap.SugaredLogger {
	return l.sugar
}

// ============================================================
// Глобальные функции логирования
// ============================================================

func Debug(msg string, fields ...zap.Field) { GetGlobalLogger().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { GetGlobalLogger().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { GetGlobalLogger().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { GetGlobalLogger().Error(msg, fields...) }
func Fatal(msg string, fields ...zap.Field) { GetGlobalLogger().Fatal(msg, fields...) }

func Debugf(format string, args ...interface{}) { GetGlobalLogger().sugar.Debugf(format, args...) }
func Infof(format string, args ...interface{})  { GetGlobalLogger().sugar.Infof(format, args...) }
func Warnf(format string, args ...interface{})  { GetGlobalLogger().sugar.Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { GetGlobalLogger().sugar.Errorf(format, args...) }

// fieldsToInterface разворачивает zap-поля в плоский список ключ/значение
// для передачи в sugar-логгер.
func fieldsToInterface(fields []zap.Field) []interface{} {
	out := make([]interface{}, 0, len(fields)*2)
	for _, f := range fields {
		enc := zapcore.NewMapObjectEncoder()
		f.AddTo(enc)
		out = append(out, f.Key, enc.Fields[f.Key])
	}
	return out
}

// ============================================================
// Конструкторы доменных полей
// ============================================================

// Account - метка аккаунта биржи.
func Account(label string) zap.Field { return zap.String("account", label) }

// AccountID - внутренний идентификатор аккаунта.
func AccountID(id int64) zap.Field { return zap.Int64("account_id", id) }

// TransactionID - внутренний идентификатор сделки.
func TransactionID(id int64) zap.Field { return zap.Int64("transaction_id", id) }

// OrderID - идентификатор P2P-ордера на бирже.
func OrderID(id string) zap.Field { return zap.String("order_id", id) }

// AdID - идентификатор объявления на бирже.
func AdID(id string) zap.Field { return zap.String("ad_id", id) }

// PayoutID - идентификатор выплаты.
func PayoutID(id string) zap.Field { return zap.String("payout_id", id) }

// Amount - денежная сумма. Сериализуется строкой без потери точности.
func Amount(d decimal.Decimal) zap.Field { return zap.String("amount", d.String()) }

// Currency - код фиатной валюты или актива.
func Currency(c string) zap.Field { return zap.String("currency", c) }

// Side - сторона объявления (buy/sell).
func Side(s string) zap.Field { return zap.String("side", s) }

// State - статус сделки или объявления.
func State(s string) zap.Field { return zap.String("state", s) }

// Action - результат обработки (matched, requeued, blacklisted...).
func Action(a string) zap.Field { return zap.String("action", a) }

// Latency - длительность операции в миллисекундах.
func Latency(ms float64) zap.Field { return zap.Float64("latency_ms", ms) }

// RequestID - идентификатор HTTP-запроса.
func RequestID(id string) zap.Field { return zap.String("request_id", id) }

// Component - имя компонента.
func Component(name string) zap.Field { return zap.String("component", name) }

// Переэкспорт стандартных конструкторов, чтобы вызывающий код
// не импортировал zap напрямую ради одного поля.
var (
	String  = zap.String
	Int     = zap.Int
	Int64   = zap.Int64
	Float64 = zap.Float64
	Bool    = zap.Bool
	Err     = zap.Error
	Any     = zap.Any
)
