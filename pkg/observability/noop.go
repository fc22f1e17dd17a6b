package observability

import "context"

// discard drops everything. One shared instance is enough since it carries no state.
type discard struct{}

var nop StructuredLogger = &discard{}

// NewNoOpLogger returns a logger that records nothing and always reports healthy.
func NewNoOpLogger() StructuredLogger { return nop }

func (*discard) Debug(string, ...map[string]any) {}
func (*discard) Info(string, ...map[string]any)  {}
func (*discard) Warn(string, ...map[string]any)  {}
func (*discard) Error(string, ...map[string]any) {}

func (d *discard) WithField(string, any) StructuredLogger     { return d }
func (d *discard) WithFields(map[string]any) StructuredLogger { return d }
func (d *discard) WithRequestID(string) StructuredLogger      { return d }
func (*discard) Flush(context.Context) error                  { return nil }
func (*discard) Close() error                                 { return nil }
func (*discard) IsHealthy() bool                              { return true }
func (*discard) GetStats() LoggerStats                        { return LoggerStats{} }
