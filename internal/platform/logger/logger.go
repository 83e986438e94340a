package logger

import (
	"log/slog"
	"os"
	"strings"

	"github.com/koustubh-k/Synk-App/internal/config"
	"github.com/koustubh-k/Synk-App/pkg/logging"
)

// NewLogger builds the process logger and installs it as the slog default.
// Every record carries the process instance id so logs from several
// processes sharing one bridge can be told apart.
func NewLogger(cfg config.Config, instanceID string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     logging.ParseLevel(cfg.Logger.Level),
		AddSource: true, // critical for incident debugging
	}
	var handler slog.Handler
	switch strings.ToLower(cfg.Logger.Format) {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	logger := slog.New(handler).With(
		slog.String("service", cfg.Service.Name),
		slog.String("env", cfg.Service.Env),
		slog.String("address", cfg.Service.Addr),
		slog.Int("pid", os.Getpid()),
		logging.Instance(instanceID),
	)
	slog.SetDefault(logger)
	return logger
}
