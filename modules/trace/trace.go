package trace

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
)

// Location reports the caller's function name and line, skip frames up.
func Location(skip int) (string, int) {
	pc, _, line, ok := runtime.Caller(skip)
	if !ok {
		return "?", line
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return "?", line
	}
	return fn.Name(), line
}

// Errorf logs the formatted message with its call site and returns it as
// an error.
func Errorf(format string, a ...any) error {
	fn, line := Location(2)
	msg := fmt.Sprintf(format, a...)
	logrus.Error(fn, ":", line, " ", msg)
	return errors.New(msg)
}

// Debugf logs at debug level; silent unless verbose logging was enabled.
func Debugf(format string, a ...any) {
	logrus.Debugf(format, a...)
}

// Warnf logs a warning that does not fail the operation.
func Warnf(format string, a ...any) {
	logrus.Warnf(format, a...)
}

// SetVerbose switches the process-wide log level.
func SetVerbose(verbose bool) {
	if verbose {
		logrus.SetLevel(logrus.DebugLevel)
		return
	}
	logrus.SetLevel(logrus.WarnLevel)
}

// Tracker prints step timings in verbose runs.
type Tracker struct {
	debug bool
	last  time.Time
}

func NewTracker(debugMode bool) *Tracker {
	return &Tracker{debug: debugMode, last: time.Now()}
}

func (t *Tracker) StepNext(format string, a ...any) {
	if !t.debug {
		return
	}
	now := time.Now()
	logrus.Debugf("%s use time: %v", fmt.Sprintf(format, a...), now.Sub(t.last))
	t.last = now
}
