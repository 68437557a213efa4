package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// pahoLogger adapts slog to the Println/Printf logger paho expects
type pahoLogger struct {
	logger *slog.Logger
	level  slog.Level
}

func (l pahoLogger) Println(v ...interface{}) {
	l.logger.Log(context.Background(), l.level, strings.TrimSpace(fmt.Sprintln(v...)), "source", "paho")
}

func (l pahoLogger) Printf(format string, v ...interface{}) {
	l.logger.Log(context.Background(), l.level, strings.TrimSpace(fmt.Sprintf(format, v...)), "source", "paho")
}

// SetPahoLogger routes paho's internal warnings and errors into logger
func SetPahoLogger(logger *slog.Logger) {
	pahomqtt.CRITICAL = pahoLogger{logger: logger, level: slog.LevelError}
	pahomqtt.ERROR = pahoLogger{logger: logger, level: slog.LevelError}
	pahomqtt.WARN = pahoLogger{logger: logger, level: slog.LevelWarn}
}
