package log

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func resetLogger() {
	baseLogger = zerolog.New(os.Stderr)
	conf = viper.New()
	initialized = false
}

func createConfigAndSetEnv(t *testing.T, text string) error {
	t.Helper()

	tmpfile, err := os.CreateTemp(t.TempDir(), "logconf")
	if err != nil {
		return err
	}
	if _, err := tmpfile.Write([]byte(text)); err != nil {
		return err
	}
	if err := tmpfile.Close(); err != nil {
		return err
	}

	envKey := confEnvPrefix + "_" + confPathKey
	t.Setenv(envKey, tmpfile.Name())

	return nil
}

func createCleanLogger(t *testing.T, configText string, moduleName string) (*Logger, error) {
	t.Helper()

	resetLogger()
	if err := createConfigAndSetEnv(t, configText); err != nil {
		return nil, err
	}
	return NewLogger(moduleName), nil
}

func TestDefaultConfig(t *testing.T) {
	logger := Default()
	assert.Equal(t, "info", logger.Level())
}

func TestBasicLevel(t *testing.T) {
	configStr := `
	level = "error"
	`

	logger, err := createCleanLogger(t, configStr, "test_logger")
	if err != nil {
		assert.Fail(t, err.Error())
	}

	assert.Equal(t, "error", logger.Level())
}

func TestSubLevel(t *testing.T) {
	configStr := `
	level = "error"

	[ledger]
	level = "warn"
	`

	logger, err := createCleanLogger(t, configStr, "ledger")
	if err != nil {
		assert.Fail(t, err.Error())
	}

	// base level is untouched by the module override
	assert.Equal(t, "error", Default().Level())
	assert.Equal(t, "warn", logger.Level())
}

func TestIsDebugNotEnabled(t *testing.T) {
	configStr := `
	level = "warn"
	`

	logger, err := createCleanLogger(t, configStr, "quiet_logger")
	if err != nil {
		assert.Fail(t, err.Error())
	}

	assert.False(t, logger.IsDebugEnabled())
}

func TestIsDebugEnabled(t *testing.T) {
	configStr := `
	level = "debug"
	`

	logger, err := createCleanLogger(t, configStr, "debug_logger")
	if err != nil {
		assert.Fail(t, err.Error())
	}

	assert.True(t, logger.IsDebugEnabled())
}

func TestLazyEval(t *testing.T) {
	evaluated := false
	lazy := DoLazyEval(func() string {
		evaluated = true
		return "expensive payload"
	})

	assert.False(t, evaluated)
	assert.Equal(t, "expensive payload", fmt.Sprintf("%v", lazy))
	assert.True(t, evaluated)
}

func TestGetOutput(t *testing.T) {
	tmplogfile, err := os.CreateTemp(t.TempDir(), "testfilelog")
	if err != nil {
		assert.Fail(t, err.Error())
	}
	tmplogfileName, err := filepath.Abs(tmplogfile.Name())
	if err != nil {
		assert.Fail(t, err.Error())
	}
	tmplogfileName = filepath.ToSlash(tmplogfileName)

	tests := []struct {
		name string

		arg     string
		wantOut interface{}
		wantErr bool
	}{
		{"TEmpty", "", nil, true},
		{"TStdout", "stdout", os.Stdout, false},
		{"TStderr", "stderr", os.Stderr, false},
		{"TCustomFile", tmplogfileName, nil, false},
		{"TFailIsDir", t.TempDir(), nil, true},
		{"TFailCantCreate", "no/where/dir/nofile.log", nil, true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := getOutput(test.arg)
			if test.wantOut != nil {
				if got != test.wantOut {
					t.Errorf("getOutput() = %v, want %v", got, test.wantOut)
				}
			}
			if (err != nil) != test.wantErr {
				t.Errorf("getOutput() err = %v, wantErr %v", err, test.wantErr)
			}
		})
	}
}

func TestFileOutByModule(t *testing.T) {
	dir := t.TempDir()
	baseLogName := filepath.ToSlash(filepath.Join(dir, "base.log"))
	m1LogName := filepath.ToSlash(filepath.Join(dir, "m1.log"))
	m2LogName := filepath.ToSlash(filepath.Join(dir, "m2.log"))

	configStr := fmt.Sprintf(`
out = "%s"
level = "info"

[m1]
out = "%s"

[m2]
out = "%s"`, baseLogName, m1LogName, m2LogName)
	if _, err := createCleanLogger(t, configStr, "m1"); err != nil {
		assert.Fail(t, err.Error())
	}

	sublog1 := NewLogger("m1")
	sublog1.Info().Msg("sub1 write")

	sublog1again := NewLogger("m1")
	sublog1again.Info().Msg("sub1 again write")

	sublog2 := NewLogger("m2")
	sublog2.Info().Msg("sub2 write")

	// a module without its own table inherits the base output
	otherlog := NewLogger("other_m")
	otherlog.Info().Msg("other write")

	baseContent, err := os.ReadFile(baseLogName)
	if err != nil {
		assert.Fail(t, err.Error())
	}
	assert.True(t, bytes.Contains(baseContent, []byte("other write")))

	m1Content, err := os.ReadFile(m1LogName)
	if err != nil {
		assert.Fail(t, err.Error())
	}
	assert.True(t, bytes.Contains(m1Content, []byte("sub1 write")))
	assert.True(t, bytes.Contains(m1Content, []byte("sub1 again write")))

	m2Content, err := os.ReadFile(m2LogName)
	if err != nil {
		assert.Fail(t, err.Error())
	}
	assert.True(t, bytes.Contains(m2Content, []byte("sub2 write")))
}
