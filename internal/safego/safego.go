package safego

import (
	"runtime/debug"
	"sync"

	"github.com/rs/zerolog"
)

// Go runs fn on a new goroutine. A panic is logged with its stack before it
// is re-raised, because the terminal UI swallows whatever reaches stderr.
func Go(logger zerolog.Logger, fn func()) {
	go func() {
		defer recoverAndLog(logger)
		fn()
	}()
}

// GoWait is Go tracked by wg
func GoWait(logger zerolog.Logger, wg *sync.WaitGroup, fn func()) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer recoverAndLog(logger)
		fn()
	}()
}

func recoverAndLog(logger zerolog.Logger) {
	if r := recover(); r != nil {
		logger.Error().Interface("panic", r).Str("stack", string(debug.Stack())).Msg("goroutine panicked")
		panic(r)
	}
}
