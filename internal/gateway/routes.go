package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/askcos/prediction-gateway/internal/adapters"
	"github.com/askcos/prediction-gateway/internal/dispatch"
	"github.com/askcos/prediction-gateway/internal/monitoring"
)

// TaskAccepted is the call-async response body.
type TaskAccepted struct {
	TaskID string `json:"task_id"`
}

// AdapterStatus describes one adapter in the backend status report.
type AdapterStatus struct {
	Name     string          `json:"name"`
	Enabled  bool            `json:"enabled"`
	Prefixes []string        `json:"prefixes,omitempty"`
	Queue    string          `json:"queue,omitempty"`
	Backends map[string]bool `json:"backends,omitempty"` // controllers: selector -> available
}

// QueueStatus describes one dispatch queue.
type QueueStatus struct {
	Depth   [dispatch.NumPriorities]int `json:"depth"` // waiting tasks by priority
	Workers int                         `json:"workers"`
}

// BackendStatus is the admin status report.
type BackendStatus struct {
	Adapters []AdapterStatus        `json:"adapters"`
	Queues   map[string]QueueStatus `json:"queues"`
}

// availabilityReporter is implemented by controllers.
type availabilityReporter interface {
	Available() map[string]bool
}

// RoutePrefix converts an adapter prefix into its URL form.
func RoutePrefix(prefix string) string {
	return strings.ReplaceAll(prefix, "_", "-")
}

func (g *Gateway) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("GET /api/admin/get-backend-status", g.handleBackendStatus)
	if g.serveMetrics {
		mux.Handle("GET /metrics", g.metrics.Handler())
	}
	if g.registry == nil {
		return
	}
	for _, a := range g.registry.All() {
		g.bindAdapter(mux, a)
	}
}

// bindAdapter binds every operation in the adapter's MethodsToBind under
// each of its prefixes.
func (g *Gateway) bindAdapter(mux *http.ServeMux, a adapters.Adapter) {
	id := a.Identity()
	ops := make([]string, 0, len(id.MethodsToBind))
	for op := range id.MethodsToBind {
		ops = append(ops, op)
	}
	sort.Strings(ops)

	for _, prefix := range id.Prefixes {
		base := "/api/" + RoutePrefix(prefix)
		for _, op := range ops {
			h := g.operation(a, op)
			if h == nil {
				g.logger.Warn().Str("adapter", id.Name).Str("op", op).Msg("unknown operation, not bound")
				continue
			}
			if op != adapters.OpCallSyncWithoutToken {
				h = g.requireToken(h)
			}
			for _, verb := range id.MethodsToBind[op] {
				mux.Handle(verb+" "+base+"/"+op, h)
				if op == adapters.OpRetrieve {
					mux.Handle(verb+" "+base+"/"+op+"/{task_id}", h)
				}
			}
		}
		if _, ok := id.MethodsToBind[adapters.OpRetrieve]; ok {
			mux.Handle("GET "+base+"/watch/{task_id}", g.requireToken(g.handleWatch(a)))
		}
		g.logger.Debug().Str("adapter", id.Name).Str("base", base).Msg("routes bound")
	}
}

func (g *Gateway) operation(a adapters.Adapter, op string) http.Handler {
	switch op {
	case adapters.OpCallSync, adapters.OpCallSyncWithoutToken:
		return g.handleCallSync(a)
	case adapters.OpCallAsync:
		return g.handleCallAsync(a)
	case adapters.OpRetrieve:
		return g.handleRetrieve(a)
	default:
		return nil
	}
}

// =============================================================================
// ADAPTER OPERATIONS
// =============================================================================

func (g *Gateway) handleCallSync(a adapters.Adapter) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := g.readBody(w, r)
		if err != nil {
			g.writeAdapterError(w, r, a, err)
			return
		}
		in, err := a.DecodeInput(body)
		if err != nil {
			g.writeAdapterError(w, r, a, err)
			return
		}
		resp, err := a.CallSync(r.Context(), in)
		if err != nil {
			g.writeAdapterError(w, r, a, err)
			return
		}
		g.writeResponse(w, resp)
	})
}

func (g *Gateway) handleCallAsync(a adapters.Adapter) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := g.readBody(w, r)
		if err != nil {
			g.writeAdapterError(w, r, a, err)
			return
		}
		priority, err := requestPriority(r, body)
		if err != nil {
			g.writeAdapterError(w, r, a, err)
			return
		}
		in, err := a.DecodeInput(body)
		if err != nil {
			g.writeAdapterError(w, r, a, err)
			return
		}
		handle, err := a.CallAsync(r.Context(), in, priority)
		if err != nil {
			g.writeAdapterError(w, r, a, err)
			return
		}
		g.writeJSON(w, http.StatusOK, TaskAccepted{TaskID: handle})
	})
}

func (g *Gateway) handleRetrieve(a adapters.Adapter) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp, err := a.Retrieve(r.Context(), taskID(r))
		if err != nil {
			g.writeAdapterError(w, r, a, err)
			return
		}
		g.writeResponse(w, resp)
	})
}

// requestPriority reads the priority from the query string or, failing
// that, from the request body. Out-of-range values are clamped.
func requestPriority(r *http.Request, body []byte) (dispatch.Priority, error) {
	if q := r.URL.Query().Get("priority"); q != "" {
		p, err := strconv.Atoi(q)
		if err != nil {
			return 0, adapters.NewValidationError("priority must be an integer")
		}
		return dispatch.ClampPriority(p), nil
	}
	p, err := adapters.ExtractPriority(body)
	if err != nil {
		return 0, err
	}
	return dispatch.PriorityOrDefault(p), nil
}

// taskID reads the handle from the path or the task_id query parameter.
func taskID(r *http.Request) string {
	if id := r.PathValue("task_id"); id != "" {
		return id
	}
	return r.URL.Query().Get("task_id")
}

// =============================================================================
// OPERATIONAL ENDPOINTS
// =============================================================================

func (g *Gateway) handleHealth(w http.ResponseWriter, _ *http.Request) {
	count := 0
	if g.registry != nil {
		count = len(g.registry.Names())
	}
	g.writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "adapters": count})
}

func (g *Gateway) handleBackendStatus(w http.ResponseWriter, _ *http.Request) {
	g.writeJSON(w, http.StatusOK, g.BackendStatus())
}

// BackendStatus reports registered adapters, disabled backends, queue
// depths and pool sizes.
func (g *Gateway) BackendStatus() *BackendStatus {
	status := &BackendStatus{Adapters: []AdapterStatus{}, Queues: map[string]QueueStatus{}}

	if g.registry != nil {
		for _, a := range g.registry.All() {
			id := a.Identity()
			entry := AdapterStatus{
				Name:     id.Name,
				Enabled:  true,
				Prefixes: append([]string(nil), id.Prefixes...),
				Queue:    a.Queue(),
			}
			if c, ok := a.(availabilityReporter); ok {
				entry.Backends = c.Available()
			}
			status.Adapters = append(status.Adapters, entry)
		}
		for _, name := range adapters.KnownBackends() {
			if _, err := g.registry.Resolve(name); err != nil {
				status.Adapters = append(status.Adapters, AdapterStatus{Name: name})
			}
		}
	}

	var sizes map[string]int
	if g.workers != nil {
		sizes = g.workers.Sizes()
	}
	if g.broker != nil {
		for name, depth := range g.broker.Depths() {
			status.Queues[name] = QueueStatus{Depth: depth, Workers: sizes[name]}
		}
	}
	return status
}

// =============================================================================
// RESPONSES
// =============================================================================

// readBody reads at most MaxRequestBodySize bytes.
func (g *Gateway) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxRequestBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, adapters.NewValidationError("request body exceeds %d bytes", MaxRequestBodySize)
		}
		return nil, adapters.NewValidationError("failed to read request body")
	}
	return body, nil
}

// writeResponse writes a NormalizedResponse with its own status code.
func (g *Gateway) writeResponse(w http.ResponseWriter, resp *adapters.Response) {
	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	g.writeJSON(w, status, resp)
}

// writeAdapterError maps err onto its status and writes it as a
// NormalizedResponse.
func (g *Gateway) writeAdapterError(w http.ResponseWriter, r *http.Request, a adapters.Adapter, err error) {
	resp := adapters.ErrorResponse(err)
	name := a.Identity().Name
	requestID := monitoring.RequestIDFromContext(r.Context())

	switch {
	case resp.StatusCode == http.StatusBadRequest:
		g.alerts.FlagInvalidRequest(requestID, name, resp.Message)
	case resp.StatusCode >= http.StatusInternalServerError:
		g.logger.Ctx(r.Context()).Error().Err(err).Str("adapter", name).Int("status", resp.StatusCode).Msg("request failed")
	}
	g.writeJSON(w, resp.StatusCode, resp)
}

// writeError writes a NormalizedResponse-shaped error body.
func (g *Gateway) writeError(w http.ResponseWriter, message string, status int) {
	g.writeJSON(w, status, &adapters.Response{StatusCode: status, Message: message})
}

func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		g.logger.Error().Err(err).Msg("failed to encode response")
		status = http.StatusInternalServerError
		data = []byte(`{"status_code":500,"message":"failed to encode response","result":null}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
