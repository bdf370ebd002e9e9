package utils

import (
	"io"
	"os"
	"sync"

	gnarklogger "github.com/consensys/gnark/logger"
	"github.com/rs/zerolog"
)

var (
	logMtx sync.RWMutex
	Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
)

func init() {
	// gnark prints compile/solve progress on its own logger
	gnarklogger.Set(zerolog.New(io.Discard).Level(zerolog.Disabled))
}

// SetLogLevel changes the level of the root logger. The gnark logger is only
// enabled at trace level.
func SetLogLevel(level string) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return err
	}

	logMtx.Lock()
	defer logMtx.Unlock()

	zerolog.SetGlobalLevel(lvl)
	Logger = Logger.Level(lvl)
	if lvl == zerolog.TraceLevel {
		gnarklogger.Set(Logger.With().Str("module", "gnark").Logger())
	} else {
		gnarklogger.Set(zerolog.New(io.Discard).Level(zerolog.Disabled))
	}
	return nil
}

func NewLogger(module string) zerolog.Logger {
	logMtx.RLock()
	defer logMtx.RUnlock()

	return Logger.With().Str("module", module).Logger()
}
