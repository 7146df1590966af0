/*
Package log wraps zerolog (https://github.com/rs/zerolog) behind per-module
loggers that share one configurable base logger.

The base logger is configured from an optional toml file. All fields are
optional; missing fields fall back to sane defaults.

 # default level for every module; one of debug/info/warn/error/fatal/panic
 level = "info"

 # output formatter; one of console, console_no_color, json
 formatter = "json"

 # print source file and line of each log call
 caller = false

 # timestamp format, any layout from the time package
 timefieldformat = "2006-01-02T15:04:05Z07:00"

 # modules may override the base settings in their own table;
 # only level and out are honored per module
 [ledger]
 level = "debug"

The file is looked up as ./submitterlog.toml, or at the path given by the
SUBMITTER_LOGCONFIG environment variable. Configuration happens on the first
NewLogger or Default call, before any command-line parsing runs.
*/
package log

import (
	"errors"
	"os"
	"strings"
	"sync"

	colorable "github.com/mattn/go-colorable"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

var baseLogger = zerolog.New(os.Stderr)
var baseLevel = zerolog.InfoLevel
var initLock sync.Mutex
var initialized = false
var conf = viper.New()

const (
	confPathKey     = "LOGCONFIG"
	confEnvPrefix   = "SUBMITTER"
	defaultConfName = "submitterlog"
)

func loadConfigFile() *viper.Viper {
	conf.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	conf.SetEnvPrefix(confEnvPrefix)
	conf.AutomaticEnv()

	conf.SetConfigType("toml")
	conf.SetConfigName(defaultConfName)
	conf.AddConfigPath(".")

	// an explicit path from the environment wins over the search path
	if confPath := conf.GetString(confPathKey); confPath != "" {
		conf.SetConfigFile(confPath)
	}

	if err := conf.ReadInConfig(); err != nil {
		switch err.(type) {
		case viper.ConfigFileNotFoundError:
			// defaults apply
		default:
			baseLogger.Error().Err(err).Msg("Failed to read log config file")
		}
	}

	return conf
}

func initLog() {
	if tf := conf.GetString("timefieldformat"); tf != "" {
		zerolog.TimeFieldFormat = tf
	}

	out := os.Stderr
	if outName := conf.GetString("out"); outName != "" {
		if o, err := getOutput(outName); err == nil {
			out = o
			baseLogger = baseLogger.Output(out)
		} else {
			baseLogger.Warn().Err(err).Str("out", outName).Msg("Failed to open log output, keeping stderr")
		}
	}

	switch strings.ToLower(conf.GetString("formatter")) {
	case "", "json":
		baseLogger = baseLogger.Output(out)
	case "console":
		baseLogger = baseLogger.Output(
			zerolog.ConsoleWriter{Out: colorable.NewColorable(out), NoColor: false, TimeFormat: zerolog.TimeFieldFormat})
	case "console_no_color":
		baseLogger = baseLogger.Output(
			zerolog.ConsoleWriter{Out: out, NoColor: true, TimeFormat: zerolog.TimeFieldFormat})
	default:
		baseLogger.Warn().Str("formatter", conf.GetString("formatter")).Msg("Unknown formatter, allowed are console/console_no_color/json")
		baseLogger = baseLogger.Output(out)
	}

	if conf.GetBool("caller") {
		baseLogger = baseLogger.With().Caller().Logger()
	}

	level := zerolog.InfoLevel
	if levelName := conf.GetString("level"); levelName != "" {
		var err error
		if level, err = zerolog.ParseLevel(levelName); err != nil {
			baseLogger.Warn().Err(err).Msg("Failed to parse log level, keeping info")
			level = zerolog.InfoLevel
		}
	}

	baseLogger = baseLogger.With().Timestamp().Logger().Level(level)
	baseLevel = level
}

// Logger is a named sub logger sharing the base logger's configuration.
type Logger struct {
	*zerolog.Logger
	name  string
	level zerolog.Level
}

// NewLogger returns a logger tagging every event with the given module name.
// Per-module overrides from the config file are applied here.
func NewLogger(moduleName string) *Logger {
	initLock.Lock()
	defer initLock.Unlock()

	if !initialized {
		loadConfigFile()
		initLog()
		initialized = true
	}

	zLogger := baseLogger.With().Str("module", moduleName).Logger()

	level := baseLevel
	if sub := conf.Sub(moduleName); sub != nil {
		if outName := sub.GetString("out"); outName != "" {
			if out, err := getOutput(outName); err == nil {
				zLogger = zLogger.Output(out)
			} else {
				baseLogger.Warn().Err(err).Str("out", outName).Str("module", moduleName).Msg("Failed to open module log output, keeping base output")
			}
		}

		if levelName := sub.GetString("level"); levelName != "" {
			var err error
			if level, err = zerolog.ParseLevel(levelName); err != nil {
				level = zerolog.InfoLevel
			}
			zLogger = zLogger.Level(level)
		}
	}

	return &Logger{
		Logger: &zLogger,
		name:   moduleName,
		level:  level,
	}
}

// Default returns the unnamed base logger.
func Default() *Logger {
	initLock.Lock()
	defer initLock.Unlock()

	if !initialized {
		loadConfigFile()
		initLog()
		initialized = true
	}

	return &Logger{
		Logger: &baseLogger,
		name:   "",
		level:  baseLevel,
	}
}

// IsDebugEnabled reports whether debug statements of this logger are emitted.
// Callers use it to skip building expensive debug payloads.
func (logger *Logger) IsDebugEnabled() bool {
	return logger.level <= zerolog.DebugLevel
}

// Level returns the logger's level name.
func (logger *Logger) Level() string {
	return logger.level.String()
}

var errEmptyName = errors.New("output name is empty")

// getOutput resolves an output name to a writable file. The names stdout and
// stderr are reserved, anything else is opened as an append-only file with
// O_SYNC so crash tails are not lost.
func getOutput(outName string) (*os.File, error) {
	switch outName {
	case "":
		return nil, errEmptyName
	case "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	default:
		return os.OpenFile(outName, os.O_WRONLY|os.O_CREATE|os.O_APPEND|os.O_SYNC, 0644)
	}
}
