package logging

// Logger is a leveled logger. The f variants format their arguments like fmt.Sprintf, the w
// variants attach alternating key/value pairs as structured fields.
type Logger interface {
	Debugf(template string, args ...interface{})
	Debugw(msg string, keysAndValues ...interface{})

	Infof(template string, args ...interface{})
	Infow(msg string, keysAndValues ...interface{})

	Warnf(template string, args ...interface{})
	Warnw(msg string, keysAndValues ...interface{})

	Errorf(template string, args ...interface{})
	Errorw(msg string, keysAndValues ...interface{})

	SetLevel(level Level)
	GetLevel() Level
	// Sublogger returns a logger named "<name>.<subname>" that starts at this logger's level and
	// writes to the same appenders, including ones added later.
	Sublogger(subname string) Logger
	AddAppender(appender Appender)
	Sync() error
}
