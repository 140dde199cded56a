package log

import (
	"os"
	"path/filepath"

	"github.com/Badsworth/pfml-scripts-sub004/conf"
	"github.com/sirupsen/logrus"
)

var (
	Extracts  logrus.FieldLogger
	Payments  logrus.FieldLogger
	Returns   logrus.FieldLogger
	Writeback logrus.FieldLogger
)

func init() {
	SetupLoggers()
}

// SetupLoggers (re)builds the package-level loggers from the current
// configuration. Exposed so tests can point the loggers at temp files.
func SetupLoggers() {
	Extracts = Logger(logrus.New(), conf.GetEnv("PUB_EXTRACTS_LOG"),
		"extracts", conf.GetEnv("ENVIRONMENT"))
	Payments = Logger(logrus.New(), conf.GetEnv("PUB_PAYMENTS_LOG"),
		"payments", conf.GetEnv("ENVIRONMENT"))
	Returns = Logger(logrus.New(), conf.GetEnv("PUB_RETURNS_LOG"),
		"returns", conf.GetEnv("ENVIRONMENT"))
	Writeback = Logger(logrus.New(), conf.GetEnv("PUB_WRITEBACK_LOG"),
		"writeback", conf.GetEnv("ENVIRONMENT"))
}

// Logger configures a logrus logger to append to the given output file,
// falling back to stderr when the file cannot be opened, and attaches the
// application and environment fields every batch process carries.
func Logger(logger *logrus.Logger, outputFile string,
	application, environment string) logrus.FieldLogger {

	if outputFile != "" {
		if file, err := os.OpenFile(filepath.Clean(outputFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640); err == nil {
			logger.SetOutput(file)
		} else {
			logger.Infof("Failed to open output file %s. Will use stderr. %s",
				outputFile, err.Error())
		}
	}

	return logger.WithFields(logrus.Fields{
		"application": application,
		"environment": environment})
}
