package audiograph

import (
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
	airbrake "gopkg.in/gemnasium/logrus-airbrake-hook.v2"
)

var debug bool

func init() {
	var err error
	debug, err = strconv.ParseBool(os.Getenv("AUDIOGRAPH_DEBUG"))
	if err != nil {
		debug = false
	}
}

// newLogger returns a fresh logrus logger, at DebugLevel if AUDIOGRAPH_DEBUG
// is set. Context accepts an override via WithLogger for tests.
func newLogger() *logrus.Logger {
	l := logrus.New()
	if debug {
		l.SetLevel(logrus.DebugLevel)
	}
	return l
}

// WithErrorReporting installs an Airbrake hook on ctx's logger so that every
// Error-level entry it logs is also shipped to an error-tracking backend.
// That covers StateViolation reports (logged once per context, per §7) from
// Connect, ConnectParam and Disconnect on the control thread, and also the
// node initialize/process failures processIfNecessary logs during
// RenderQuantum.
func WithErrorReporting(projectID int, apiKey, env string) Option {
	return func(c *Context) error {
		l, ok := c.log.(*logrus.Logger)
		if !ok {
			return newError("WithErrorReporting", KindSyntax, "logger does not support hooks")
		}
		hook := airbrake.NewHook(int64(projectID), apiKey, env)
		l.AddHook(hook)
		return nil
	}
}
