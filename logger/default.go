package logger

var defLogger = NewSlog(InfoLevel, false)

// Error logs through the package default logger.
func Error(msg string, keysAndValues ...any) {
	defLogger.Error(msg, keysAndValues...)
}

// GetLogger returns the package default logger.
func GetLogger() Logger {
	return defLogger
}
