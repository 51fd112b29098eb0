package neary

import (
	"os"

	"github.com/sirupsen/logrus"
)

// NewLogger builds the process logger: text output with full timestamps on
// stdout. Debug mode widens the level to include hot-path diagnostics.
func NewLogger(debug bool) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if debug {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.InfoLevel)
	}
	return log
}
