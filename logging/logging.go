// Package logging holds the shared logrus entry used by every component of the service.
package logging

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// Log is the base entry that component loggers derive from.
var Log = logrus.WithFields(logrus.Fields{
	"service": "helpdesk-notifier",
	"art-id":  "helpdesk-notifier",
	"group":   "org.cyverse",
})

// SetupLogging configures the standard logger with the JSON formatter and the given level. Unknown levels
// fall back to info.
func SetupLogging(configuredLevel string) {
	level, err := logrus.ParseLevel(strings.TrimSpace(configuredLevel))
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(level)
}
