// Package logging contains the leveled, appender-based logger used throughout the detector.
package logging

// NewBlankLogger returns a Debug+ logger in UTC with no appenders.
func NewBlankLogger(name string) Logger {
	return newImpl(name, DEBUG, true)
}

// NewFileLogger returns a logger at level that writes to stdout and to the rotated file at path.
func NewFileLogger(name, path string, level Level) Logger {
	return newImpl(name, level, true, NewStdoutAppender(), NewFileAppender(path))
}
