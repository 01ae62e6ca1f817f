package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/viper"
)

// NewLogger 按 log.level / log.format 构造 slog.Logger
func NewLogger(w io.Writer) (*slog.Logger, error) {
	var level slog.Level // 未设置时为 info
	if s := viper.GetString("log.level"); s != "" {
		if err := level.UnmarshalText([]byte(s)); err != nil {
			return nil, fmt.Errorf("invalid log.level: %w", err)
		}
	}
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(viper.GetString("log.format")) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unsupported log.format %q", viper.GetString("log.format"))
	}
}
