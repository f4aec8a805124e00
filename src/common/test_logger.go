package common

import (
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
)

// TestLogLevel is the level used by the test loggers of this module.
const TestLogLevel = logrus.DebugLevel

// This can be used as the destination for a logger and it'll
// map them into calls to testing.T.Log, so that you only see
// the logging for failed tests. Lines written after the test completed are
// dropped, since background goroutines may outlive it.
type testLoggerAdapter struct {
	t      testing.TB
	prefix string

	mtx  sync.Mutex
	done bool
}

func (a *testLoggerAdapter) Write(d []byte) (int, error) {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	if a.done {
		return len(d), nil
	}

	if len(d) > 0 && d[len(d)-1] == '\n' {
		d = d[:len(d)-1]
	}
	if a.prefix != "" {
		l := a.prefix + ": " + string(d)
		a.t.Log(l)
		return len(l), nil
	}
	a.t.Log(string(d))
	return len(d), nil
}

// NewTestLogger returns a logrus Logger that writes through t.Log.
func NewTestLogger(t testing.TB, level logrus.Level) *logrus.Logger {
	adapter := &testLoggerAdapter{t: t}
	t.Cleanup(func() {
		adapter.mtx.Lock()
		adapter.done = true
		adapter.mtx.Unlock()
	})

	logger := logrus.New()
	logger.Out = adapter
	logger.Level = level
	return logger
}

// NewTestEntry returns a logrus Entry, with a "prefix" field, that writes
// through t.Log.
func NewTestEntry(t testing.TB, level logrus.Level) *logrus.Entry {
	return NewTestLogger(t, level).WithField("prefix", t.Name())
}
