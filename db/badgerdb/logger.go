package badgerdb

import (
	"fmt"
	"strings"

	"github.com/Blockshard-io/validator-submitter/log"
)

// extendedLog adapts the repo logger to badger.Logger. Badger terminates its
// messages with a newline, zerolog does not.
type extendedLog struct {
	*log.Logger
}

func (l *extendedLog) Errorf(f string, v ...interface{}) {
	l.Error().Msg(trimFormat(f, v...))
}

func (l *extendedLog) Warningf(f string, v ...interface{}) {
	l.Warn().Msg(trimFormat(f, v...))
}

func (l *extendedLog) Infof(f string, v ...interface{}) {
	l.Info().Msg(trimFormat(f, v...))
}

func (l *extendedLog) Debugf(f string, v ...interface{}) {
	l.Debug().Msg(trimFormat(f, v...))
}

func trimFormat(f string, v ...interface{}) string {
	return strings.TrimRight(fmt.Sprintf(f, v...), "\n")
}
