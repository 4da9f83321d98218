// Package logger はサービス共通のzerologロガーを生成する。
package logger

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// New はserviceフィールドと時刻を付与したJSON形式のロガーを生成する。
// levelが解釈できない場合はinfoを使用する。wがnilの場合は標準出力に書き込む。
func New(service, level string, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stdout
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).
		Level(lvl).
		With().
		Timestamp().
		Str("service", service).
		Logger()
}
