package logging

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// callerSkip is the number of stack frames between write and the caller of a Logger method.
const callerSkip = 3

var errUnpairedKey = errors.New("unpaired log key")

// sink is the list of appenders a logger tree writes to.
type sink struct {
	mu        sync.RWMutex
	appenders []Appender
}

func (s *sink) add(appender Appender) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appenders = append(s.appenders, appender)
}

func (s *sink) write(entry zapcore.Entry, fields []zapcore.Field) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var err error
	for _, appender := range s.appenders {
		err = multierr.Append(err, appender.Write(entry, fields))
	}
	return err
}

func (s *sink) sync() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var err error
	for _, appender := range s.appenders {
		err = multierr.Append(err, appender.Sync())
	}
	return err
}

type impl struct {
	name  string
	level AtomicLevel
	utc   bool
	sink  *sink
}

func newImpl(name string, level Level, utc bool, appenders ...Appender) *impl {
	return &impl{
		name:  name,
		level: NewAtomicLevelAt(level),
		utc:   utc,
		sink:  &sink{appenders: appenders},
	}
}

func (imp *impl) Debugf(template string, args ...interface{}) { imp.logf(DEBUG, template, args) }
func (imp *impl) Infof(template string, args ...interface{})  { imp.logf(INFO, template, args) }
func (imp *impl) Warnf(template string, args ...interface{})  { imp.logf(WARN, template, args) }
func (imp *impl) Errorf(template string, args ...interface{}) { imp.logf(ERROR, template, args) }

func (imp *impl) Debugw(msg string, keysAndValues ...interface{}) { imp.logw(DEBUG, msg, keysAndValues) }
func (imp *impl) Infow(msg string, keysAndValues ...interface{})  { imp.logw(INFO, msg, keysAndValues) }
func (imp *impl) Warnw(msg string, keysAndValues ...interface{})  { imp.logw(WARN, msg, keysAndValues) }
func (imp *impl) Errorw(msg string, keysAndValues ...interface{}) { imp.logw(ERROR, msg, keysAndValues) }

func (imp *impl) SetLevel(level Level) {
	imp.level.Set(level)
}

func (imp *impl) GetLevel() Level {
	return imp.level.Get()
}

func (imp *impl) Sublogger(subname string) Logger {
	name := subname
	if imp.name != "" {
		name = imp.name + "." + subname
	}
	return &impl{name: name, level: NewAtomicLevelAt(imp.level.Get()), utc: imp.utc, sink: imp.sink}
}

func (imp *impl) AddAppender(appender Appender) {
	imp.sink.add(appender)
}

func (imp *impl) Sync() error {
	return imp.sink.sync()
}

func (imp *impl) logf(level Level, template string, args []interface{}) {
	if level < imp.level.Get() {
		return
	}
	imp.write(level, fmt.Sprintf(template, args...), nil)
}

func (imp *impl) logw(level Level, msg string, keysAndValues []interface{}) {
	if level < imp.level.Get() {
		return
	}
	imp.write(level, msg, pairsToFields(keysAndValues))
}

func (imp *impl) write(level Level, msg string, fields []zapcore.Field) {
	entry := zapcore.Entry{
		Level:      level.AsZap(),
		Time:       time.Now(),
		LoggerName: imp.name,
		Message:    msg,
		Caller:     zapcore.NewEntryCaller(runtime.Caller(callerSkip)),
	}
	if imp.utc {
		entry.Time = entry.Time.UTC()
	}
	if err := imp.sink.write(entry, fields); err != nil {
		//nolint:errcheck
		fmt.Fprintln(os.Stderr, err)
	}
}

// pairsToFields turns alternating keys and values into zap fields. A trailing key without a value
// is kept with an error as its value.
func pairsToFields(keysAndValues []interface{}) []zapcore.Field {
	fields := make([]zapcore.Field, 0, (len(keysAndValues)+1)/2)
	for i := 0; i < len(keysAndValues); i += 2 {
		key := fmt.Sprint(keysAndValues[i])
		if i+1 == len(keysAndValues) {
			fields = append(fields, zap.NamedError(key, errUnpairedKey))
			break
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}
