package mocks

import (
	"sync"

	"github.com/kevin07696/payment-engine/internal/domain/ports"
)

// MockLogger records log calls for assertions. It is safe for concurrent use.
type MockLogger struct {
	mu         sync.Mutex
	InfoCalls  []LogCall
	ErrorCalls []LogCall
	WarnCalls  []LogCall
	DebugCalls []LogCall
}

// LogCall represents a captured log call
type LogCall struct {
	Message string
	Fields  []ports.Field
}

// NewMockLogger creates a new mock logger
func NewMockLogger() *MockLogger {
	return &MockLogger{}
}

// Info logs an info message
func (m *MockLogger) Info(msg string, fields ...ports.Field) {
	m.record(&m.InfoCalls, msg, fields)
}

// Error logs an error message
func (m *MockLogger) Error(msg string, fields ...ports.Field) {
	m.record(&m.ErrorCalls, msg, fields)
}

// Warn logs a warning message
func (m *MockLogger) Warn(msg string, fields ...ports.Field) {
	m.record(&m.WarnCalls, msg, fields)
}

// Debug logs a debug message
func (m *MockLogger) Debug(msg string, fields ...ports.Field) {
	m.record(&m.DebugCalls, msg, fields)
}

// Logged reports whether msg was logged at any level.
func (m *MockLogger) Logged(msg string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, calls := range [][]LogCall{m.InfoCalls, m.ErrorCalls, m.WarnCalls, m.DebugCalls} {
		for _, c := range calls {
			if c.Message == msg {
				return true
			}
		}
	}
	return false
}

// Reset clears all captured calls
func (m *MockLogger) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.InfoCalls = nil
	m.ErrorCalls = nil
	m.WarnCalls = nil
	m.DebugCalls = nil
}

func (m *MockLogger) record(calls *[]LogCall, msg string, fields []ports.Field) {
	m.mu.Lock()
	defer m.mu.Unlock()
	*calls = append(*calls, LogCall{Message: msg, Fields: fields})
}
