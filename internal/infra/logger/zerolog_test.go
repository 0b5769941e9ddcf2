package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestZerologLoggerMethods(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("LOG_LEVEL", "debug")
	l := NewZerologLogger("test")
	assert.NotNil(t, l)
	l.Debugf("debug %d", 1)
	l.Debugw("debug", map[string]any{"k": 1})
	l.Infof("info %s", "test")
	l.Warnf("warn")
	l.Errorf("error")
}

func TestNopLogger(t *testing.T) {
	var l Logger = NopLogger{}
	l.Infof("ignored %d", 1)
	l.Debugw("ignored", nil)
}
