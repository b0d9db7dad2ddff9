//go:build windows

package lifecycle

import (
	"strings"

	"go.uber.org/zap/zapcore"
	"golang.org/x/sys/windows/svc/eventlog"
)

// Event IDs written to the application log.
const (
	eventInfo  = 1
	eventWarn  = 2
	eventError = 3
)

// OpenEventLog returns a zap core writing to the Windows event log
// under source name.
func OpenEventLog(name string) (zapcore.Core, error) {
	// Registration fails without administrator rights or when the
	// source already exists; Open succeeds in the latter case.
	_ = eventlog.InstallAsEventCreate(name, eventlog.Error|eventlog.Warning|eventlog.Info)

	el, err := eventlog.Open(name)
	if err != nil {
		return nil, err
	}
	enc := zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		MessageKey:       "msg",
		ConsoleSeparator: " ",
	})
	return &eventLogCore{log: el, enc: enc}, nil
}

// eventLogCore is a zapcore.Core over an event log handle.  Verbosity
// gating happens before zap, so every entry is enabled.
type eventLogCore struct {
	log *eventlog.Log
	enc zapcore.Encoder
}

func (c *eventLogCore) Enabled(zapcore.Level) bool { return true }

func (c *eventLogCore) With(fields []zapcore.Field) zapcore.Core {
	enc := c.enc.Clone()
	for _, f := range fields {
		f.AddTo(enc)
	}
	return &eventLogCore{log: c.log, enc: enc}
}

func (c *eventLogCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	return ce.AddCore(ent, c)
}

func (c *eventLogCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	buf, err := c.enc.EncodeEntry(ent, fields)
	if err != nil {
		return err
	}
	msg := strings.TrimRight(buf.String(), "\r\n")
	buf.Free()

	switch {
	case ent.Level >= zapcore.ErrorLevel:
		return c.log.Error(eventError, msg)
	case ent.Level == zapcore.WarnLevel:
		return c.log.Warning(eventWarn, msg)
	default:
		return c.log.Info(eventInfo, msg)
	}
}

func (c *eventLogCore) Sync() error { return nil }
