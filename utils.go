package main

import (
	"context"
	"time"

	"github.com/victorjacobs/go-nilan/logging"
)

// loopSafely calls f every interval until ctx is done, restarting the loop
// after a panic.
func loopSafely(ctx context.Context, log *logging.Logger, interval time.Duration, f func(ctx context.Context)) {
	defer func() {
		if v := recover(); v != nil {
			log.Errorw("Panic, restarting", "panic", v)
			time.Sleep(time.Second)
			go loopSafely(ctx, log, interval, f)
		}
	}()

	for {
		f(ctx)

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}
