package log

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/Badsworth/pfml-scripts-sub004/conf"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoggers verifies that all of our loggers are set up with the expected
// application field and write to the configured files.
func TestLoggers(t *testing.T) {
	tests := []struct {
		logEnv      string
		application string
		// Use a supplier since the logger's reference will be updated every
		// time we call SetupLoggers.
		logSupplier func() logrus.FieldLogger
	}{
		{"PUB_EXTRACTS_LOG", "extracts", func() logrus.FieldLogger { return Extracts }},
		{"PUB_PAYMENTS_LOG", "payments", func() logrus.FieldLogger { return Payments }},
		{"PUB_RETURNS_LOG", "returns", func() logrus.FieldLogger { return Returns }},
		{"PUB_WRITEBACK_LOG", "writeback", func() logrus.FieldLogger { return Writeback }},
	}
	for _, tt := range tests {
		t.Run(tt.logEnv, func(t *testing.T) {
			logFile, err := os.CreateTemp("", "*")
			require.NoError(t, err)
			old := conf.GetEnv(tt.logEnv)
			t.Cleanup(func() {
				assert.NoError(t, os.Remove(logFile.Name()))
				assert.NoError(t, conf.SetEnv(t, tt.logEnv, old))
			})

			require.NoError(t, conf.SetEnv(t, tt.logEnv, logFile.Name()))

			// Refresh the logger to reference the new configs
			SetupLoggers()
			logger := tt.logSupplier()
			logger.(*logrus.Entry).Logger.SetFormatter(&logrus.JSONFormatter{})
			logger.Info("hello")

			data, err := os.ReadFile(logFile.Name())
			require.NoError(t, err)

			var entry map[string]interface{}
			require.NoError(t, json.Unmarshal(data, &entry))
			assert.Equal(t, tt.application, entry["application"])
			assert.Equal(t, "hello", entry["msg"])
		})
	}
}
