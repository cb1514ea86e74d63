// Package logger 初始化全局 zerolog 日志。
//
// 业务代码直接使用 github.com/rs/zerolog/log；请求链路使用 zerolog.Ctx(ctx)，
// 由 HTTP 中间件注入带 request_id 的 logger。
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// 日志输出格式
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// Init 设置全局日志级别与输出格式
func Init(level, format string) error {
	return InitWithWriter(level, format, os.Stdout)
}

// InitWithWriter 同 Init，输出到指定 writer（测试使用）
func InitWithWriter(level, format string, w io.Writer) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	switch strings.ToLower(format) {
	case FormatJSON, "":
	case FormatConsole:
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "2006-01-02 15:04:05.000"}
	default:
		return fmt.Errorf("unsupported log format %q", format)
	}

	log.Logger = zerolog.New(w).With().Timestamp().Str("service", "imputekit").Logger()
	// 未注入 request logger 的 ctx 回落到全局 logger
	zerolog.DefaultContextLogger = &log.Logger
	return nil
}

// ParseLevel 解析日志级别，空字符串视为 info
func ParseLevel(level string) (zerolog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "", "INFO":
		return zerolog.InfoLevel, nil
	case "DEBUG":
		return zerolog.DebugLevel, nil
	case "TRACE":
		return zerolog.TraceLevel, nil
	case "WARN", "WARNING":
		return zerolog.WarnLevel, nil
	case "ERROR":
		return zerolog.ErrorLevel, nil
	case "FATAL":
		return zerolog.FatalLevel, nil
	case "PANIC":
		return zerolog.PanicLevel, nil
	case "DISABLED":
		return zerolog.Disabled, nil
	default:
		return zerolog.NoLevel, fmt.Errorf("incorrect log level %q", level)
	}
}
