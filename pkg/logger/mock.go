package logger

import (
	"sync/atomic"

	"github.com/stretchr/testify/mock"
)

// MockLogger is a testify mock of Logger. Every record reaches the mock as
// (msg, fields), with fields bound through With placed ahead of the call's
// own. Children returned by With share the parent's expectations, so a
// component that derives its own logger can still be asserted on.
//
// Level and SetLevel are plain state and need no expectations.
type MockLogger struct {
	*mockCore
	fields []any
}

type mockCore struct {
	mock.Mock
	level atomic.Int32
}

var _ Logger = (*MockLogger)(nil)

func NewMockLogger() *MockLogger {
	core := &mockCore{}
	core.level.Store(int32(InfoLevel))
	return &MockLogger{mockCore: core}
}

// AllowAll accepts any record. Expectations registered before it still
// match first.
func (m *MockLogger) AllowAll() *MockLogger {
	for _, method := range []string{"Debug", "Info", "Warn", "Error", "Fatal"} {
		m.On(method, mock.Anything, mock.Anything).Maybe()
	}
	return m
}

func (m *MockLogger) record(method, msg string, keysAndValues []any) {
	fields := make([]any, 0, len(m.fields)+len(keysAndValues))
	fields = append(fields, m.fields...)
	fields = append(fields, keysAndValues...)
	m.MethodCalled(method, msg, fields)
}

func (m *MockLogger) Debug(msg string, keysAndValues ...any) { m.record("Debug", msg, keysAndValues) }
func (m *MockLogger) Info(msg string, keysAndValues ...any)  { m.record("Info", msg, keysAndValues) }
func (m *MockLogger) Warn(msg string, keysAndValues ...any)  { m.record("Warn", msg, keysAndValues) }
func (m *MockLogger) Error(msg string, keysAndValues ...any) { m.record("Error", msg, keysAndValues) }
func (m *MockLogger) Fatal(msg string, keysAndValues ...any) { m.record("Fatal", msg, keysAndValues) }

func (m *MockLogger) SetLevel(level Level) {
	m.level.Store(int32(level))
}

func (m *MockLogger) Level() Level {
	return Level(m.level.Load())
}

func (m *MockLogger) With(keyValues ...any) Logger {
	fields := make([]any, 0, len(m.fields)+len(keyValues))
	fields = append(fields, m.fields...)
	fields = append(fields, keyValues...)
	return &MockLogger{mockCore: m.mockCore, fields: fields}
}
