package stripe

import (
	"fmt"

	"github.com/ikkim/tabline-backend/pkg/logger"
)

// leveledLogger routes stripe-go's request logging into the app logger.
type leveledLogger struct{}

func (leveledLogger) Debugf(format string, v ...interface{}) {
	logger.Debug(fmt.Sprintf(format, v...), map[string]interface{}{"component": "stripe"})
}

func (leveledLogger) Infof(format string, v ...interface{}) {
	logger.Debug(fmt.Sprintf(format, v...), map[string]interface{}{"component": "stripe"})
}

func (leveledLogger) Warnf(format string, v ...interface{}) {
	logger.Warn(fmt.Sprintf(format, v...), map[string]interface{}{"component": "stripe"})
}

// Declines are logged here as errors too; callers decide the severity.
func (leveledLogger) Errorf(format string, v ...interface{}) {
	logger.Warn(fmt.Sprintf(format, v...), map[string]interface{}{"component": "stripe"})
}
