package common

import (
	logging "github.com/ipfs/go-log"
)

// InitLogging configures the process-wide logging backend once at startup.
// Subsystems grab their own named logger afterwards, e.g.
// logging.Logger("bitcoin"); level changes here apply to all of them unless
// overridden individually.
func InitLogging(level string) error {
	return logging.SetLogLevel("*", level)
}
