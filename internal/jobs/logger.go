package jobs

import (
	"context"
	"fmt"
	"os"

	"commission-engine/internal/observability"
)

// AsynqLogger adapts observability.Logger to the asynq.Logger interface
type AsynqLogger struct {
	Logger *observability.Logger
}

func (l *AsynqLogger) Debug(args ...interface{}) {
	l.Logger.Debug(context.Background(), fmt.Sprint(args...))
}

func (l *AsynqLogger) Info(args ...interface{}) {
	l.Logger.Info(context.Background(), fmt.Sprint(args...))
}

func (l *AsynqLogger) Warn(args ...interface{}) {
	l.Logger.Warn(context.Background(), fmt.Sprint(args...))
}

func (l *AsynqLogger) Error(args ...interface{}) {
	l.Logger.Error(context.Background(), fmt.Sprint(args...), nil)
}

func (l *AsynqLogger) Fatal(args ...interface{}) {
	l.Logger.Error(context.Background(), fmt.Sprint(args...), nil)
	os.Exit(1)
}
