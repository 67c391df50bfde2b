package main

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// cronLogger adapts zap to cron's logger interface.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}

// scheduleCollection runs job on spec until ctx is done. A run still in
// progress when the next tick fires causes that tick to be skipped.
func scheduleCollection(ctx context.Context, spec string, job func(ctx context.Context)) (*cron.Cron, error) {
	logger := cronLogger{log: zap.L().With(zap.String("component", "scheduler")).Sugar()}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	if _, err := c.AddFunc(spec, func() { job(ctx) }); err != nil {
		return nil, eris.Wrapf(err, "invalid schedule %q", spec)
	}
	c.Start()

	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()
	return c, nil
}
