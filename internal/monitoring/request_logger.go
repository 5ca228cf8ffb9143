// Package monitoring - request_logger.go logs request and task lifecycle.
//
// DESIGN: Structured logging for tracing at DEBUG level:
//   - LogIncoming:    Request received from client
//   - LogResponse:    Response sent to client
//   - LogBackendCall: Prediction request sent to a backend
//   - LogDispatch:    Async task submitted to a queue
package monitoring

import (
	"net/http"
	"time"
)

// RequestLogger logs HTTP request lifecycle events.
type RequestLogger struct {
	logger *Logger
}

// NewRequestLogger creates a new request logger.
func NewRequestLogger(logger *Logger) *RequestLogger {
	if logger == nil {
		logger = Nop()
	}
	return &RequestLogger{logger: logger}
}

// RequestInfo contains incoming request information.
type RequestInfo struct {
	RequestID  string
	Method     string
	Path       string
	RemoteAddr string
	BodySize   int
	StartTime  time.Time
}

// NewRequestInfo creates RequestInfo from an HTTP request.
func NewRequestInfo(r *http.Request, requestID string, bodySize int) *RequestInfo {
	return &RequestInfo{
		RequestID:  requestID,
		Method:     r.Method,
		Path:       r.URL.Path,
		RemoteAddr: r.RemoteAddr,
		BodySize:   bodySize,
		StartTime:  time.Now(),
	}
}

// LogIncoming logs an incoming request.
func (rl *RequestLogger) LogIncoming(info *RequestInfo) {
	rl.logger.Debug().
		Str("request_id", info.RequestID).
		Str("method", info.Method).
		Str("path", info.Path).
		Int("body_size", info.BodySize).
		Msg("incoming")
}

// ResponseInfo contains response information.
type ResponseInfo struct {
	RequestID  string
	StatusCode int
	Latency    time.Duration
}

// LogResponse logs a response.
func (rl *RequestLogger) LogResponse(info *ResponseInfo) {
	rl.logger.Debug().
		Str("request_id", info.RequestID).
		Int("status", info.StatusCode).
		Dur("latency", info.Latency).
		Msg("response")
}

// BackendCallInfo describes one outbound prediction call.
type BackendCallInfo struct {
	RequestID string
	Adapter   string
	TargetURL string
	BodySize  int
	Outcome   Outcome
	Latency   time.Duration
}

// LogBackendCall logs an outbound prediction call.
func (rl *RequestLogger) LogBackendCall(info *BackendCallInfo) {
	rl.logger.Debug().
		Str("request_id", info.RequestID).
		Str("adapter", info.Adapter).
		Str("url", info.TargetURL).
		Int("body_size", info.BodySize).
		Str("outcome", string(info.Outcome)).
		Dur("latency", info.Latency).
		Msg("backend_call")
}

// DispatchInfo describes an async submission.
type DispatchInfo struct {
	RequestID string
	TaskID    string
	Adapter   string
	Queue     string
	Priority  int
}

// LogDispatch logs an async submission.
func (rl *RequestLogger) LogDispatch(info *DispatchInfo) {
	rl.logger.Debug().
		Str("request_id", info.RequestID).
		Str("task_id", info.TaskID).
		Str("adapter", info.Adapter).
		Str("queue", info.Queue).
		Int("priority", info.Priority).
		Msg("dispatch")
}
