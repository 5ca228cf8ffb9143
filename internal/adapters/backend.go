package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/askcos/prediction-gateway/external"
	"github.com/askcos/prediction-gateway/internal/dispatch"
	"github.com/askcos/prediction-gateway/internal/monitoring"
	"github.com/askcos/prediction-gateway/internal/store"
)

// Deps are the collaborators shared by all adapters.
type Deps struct {
	Client        *external.Client // nil: plain client, or per-backend signing client
	Broker        *dispatch.Broker // nil: CallAsync/Retrieve unavailable
	Logger        *monitoring.Logger
	Metrics       *monitoring.Metrics
	Alerts        *monitoring.AlertManager
	RequestLogger *monitoring.RequestLogger
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = monitoring.Nop()
	}
	if d.RequestLogger == nil {
		d.RequestLogger = monitoring.NewRequestLogger(d.Logger)
	}
	if d.Client == nil {
		d.Client = external.NewClient(nil)
	}
	return d
}

// backendSpec describes one HTTP backend. In must be a pointer type.
type backendSpec[In Input, Raw any] struct {
	name      string
	prefixes  []string
	defaults  func() In
	selector  func(in In) string                // downstream path below prediction_url
	model     func(in In) string                // model checked against available_model_names
	ingest    func(body []byte) ([]byte, error) // explicit field renames before decoding
	normalize func(raw Raw) *Response
}

// backend implements Adapter for a single HTTP prediction service.
type backend[In Input, Raw any] struct {
	spec     backendSpec[In, Raw]
	identity Identity
	cfg      BackendConfig
	deps     Deps
}

func newBackend[In Input, Raw any](spec backendSpec[In, Raw], cfg BackendConfig, deps Deps) *backend[In, Raw] {
	if cfg.Timeout <= 0 {
		cfg.Timeout = external.DefaultTimeout
	}
	return &backend[In, Raw]{
		spec: spec,
		identity: Identity{
			Name:          spec.name,
			Prefixes:      append([]string(nil), spec.prefixes...),
			MethodsToBind: DefaultMethods(),
		},
		cfg:  cfg,
		deps: deps.withDefaults(),
	}
}

func (b *backend[In, Raw]) Identity() Identity { return b.identity }

func (b *backend[In, Raw]) Queue() string {
	if b.cfg.Queue != "" {
		return b.cfg.Queue
	}
	return b.spec.name
}

// Config returns the backend configuration.
func (b *backend[In, Raw]) Config() BackendConfig { return b.cfg }

func (b *backend[In, Raw]) DecodeInput(body []byte) (Input, error) {
	in, err := decodeInput(body, b.spec.defaults)
	if err != nil {
		return nil, err
	}
	if err := b.checkModel(in); err != nil {
		return nil, err
	}
	return in, nil
}

// input asserts and validates an Input built by a caller.
func (b *backend[In, Raw]) input(in Input) (In, error) {
	typed, ok := in.(In)
	if !ok {
		var zero In
		return zero, newError(ErrValidation, nil, "%s: unexpected input type %T", b.spec.name, in)
	}
	if err := typed.Validate(); err != nil {
		var zero In
		return zero, err
	}
	if err := b.checkModel(typed); err != nil {
		var zero In
		return zero, err
	}
	return typed, nil
}

func (b *backend[In, Raw]) checkModel(in In) error {
	if b.spec.model == nil {
		return nil
	}
	model := b.spec.model(in)
	if !b.cfg.allowsModel(model) {
		return newError(ErrValidation, nil, "model_name %q is not available for %s", model, b.spec.name)
	}
	return nil
}

func (b *backend[In, Raw]) CallRaw(ctx context.Context, in Input) (RawOutput, error) {
	typed, err := b.input(in)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(typed)
	if err != nil {
		return nil, newError(ErrValidation, err, "failed to encode input")
	}

	url := external.JoinURL(b.cfg.PredictionURL, b.spec.selector(typed))
	start := time.Now()
	respBody, err := b.deps.Client.PostJSON(ctx, url, body, b.cfg.Timeout)
	if err == nil && b.spec.ingest != nil {
		if respBody, err = b.spec.ingest(respBody); err != nil {
			err = newError(ErrUpstreamError, err, "%s returned an unexpected shape", b.spec.name)
		}
	}

	var raw Raw
	if err == nil {
		if uerr := json.Unmarshal(respBody, &raw); uerr != nil {
			err = newError(ErrUpstreamError, uerr, "%s returned an unexpected shape", b.spec.name)
		}
	} else {
		var classified *Error
		if !errors.As(err, &classified) {
			err = classifyUpstream(b.spec.name, err)
		}
	}

	b.observe(ctx, url, len(body), time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func (b *backend[In, Raw]) observe(ctx context.Context, url string, size int, latency time.Duration, err error) {
	outcome := outcomeOf(err)
	requestID := monitoring.RequestIDFromContext(ctx)

	b.deps.Metrics.ObserveBackendCall(b.spec.name, outcome, latency)
	b.deps.RequestLogger.LogBackendCall(&monitoring.BackendCallInfo{
		RequestID: requestID,
		Adapter:   b.spec.name,
		TargetURL: url,
		BodySize:  size,
		Outcome:   outcome,
		Latency:   latency,
	})
	switch outcome {
	case monitoring.OutcomeTimeout:
		b.deps.Alerts.FlagUpstreamTimeout(requestID, b.spec.name, url, b.cfg.Timeout)
	case monitoring.OutcomeUpstream:
		b.deps.Alerts.FlagUpstreamError(requestID, b.spec.name, upstreamStatus(err), err)
	}
}

func (b *backend[In, Raw]) CallSync(ctx context.Context, in Input) (*Response, error) {
	raw, err := b.CallRaw(ctx, in)
	if err != nil {
		return nil, err
	}
	return b.Normalize(raw), nil
}

func (b *backend[In, Raw]) CallAsync(ctx context.Context, in Input, priority dispatch.Priority) (string, error) {
	typed, err := b.input(in)
	if err != nil {
		return "", err
	}
	return submitTask(ctx, b.deps, b.spec.name, b.Queue(), typed, priority)
}

func (b *backend[In, Raw]) Retrieve(ctx context.Context, handle string) (*Response, error) {
	return retrieveTask(ctx, b.deps.Broker, handle)
}

func (b *backend[In, Raw]) Normalize(raw RawOutput) *Response {
	typed, ok := raw.(Raw)
	if !ok {
		return &Response{StatusCode: 500, Message: "unexpected raw output type"}
	}
	return b.spec.normalize(typed)
}

// =============================================================================
// SHARED DISPATCH / RETRIEVAL
// =============================================================================

// submitTask sends (adapter, input) to the broker.
func submitTask(ctx context.Context, deps Deps, adapter, queue string, in Input, priority dispatch.Priority) (string, error) {
	if deps.Broker == nil {
		return "", errors.New("async dispatch is not configured")
	}
	payload, err := json.Marshal(in)
	if err != nil {
		return "", newError(ErrValidation, err, "failed to encode input")
	}
	handle, err := deps.Broker.Submit(ctx, adapter, queue, payload, priority)
	if err != nil {
		return "", err
	}
	deps.RequestLogger.LogDispatch(&monitoring.DispatchInfo{
		RequestID: monitoring.RequestIDFromContext(ctx),
		TaskID:    handle,
		Adapter:   adapter,
		Queue:     queue,
		Priority:  int(priority),
	})
	return handle, nil
}

// retrieveTask reads the stored outcome of handle without mutating it.
func retrieveTask(ctx context.Context, broker *dispatch.Broker, handle string) (*Response, error) {
	if broker == nil {
		return nil, errors.New("async dispatch is not configured")
	}
	if handle == "" {
		return nil, newError(ErrValidation, nil, "task_id is required")
	}

	rec, err := broker.Lookup(ctx, handle)
	if err != nil {
		if errors.Is(err, dispatch.ErrTaskNotFound) {
			return nil, newError(ErrNotFound, nil, "task %s not found or expired", handle)
		}
		return nil, err
	}

	switch rec.State {
	case store.StateSucceeded:
		var resp Response
		if err := json.Unmarshal(rec.Result, &resp); err != nil {
			return nil, newError(ErrUpstreamError, err, "stored result for task %s is corrupt", handle)
		}
		return &resp, nil
	case store.StateFailed:
		return &Response{StatusCode: rec.StatusCode, Message: rec.Error}, nil
	default:
		return nil, newError(ErrPending, nil, "task %s is %s", handle, rec.State)
	}
}

func outcomeOf(err error) monitoring.Outcome {
	switch {
	case err == nil:
		return monitoring.OutcomeSuccess
	case errors.Is(err, ErrUpstreamTimeout):
		return monitoring.OutcomeTimeout
	case errors.Is(err, ErrUpstreamError):
		return monitoring.OutcomeUpstream
	case errors.Is(err, ErrValidation):
		return monitoring.OutcomeInvalid
	default:
		return monitoring.OutcomeError
	}
}

func upstreamStatus(err error) int {
	var statusErr *external.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	return 0
}
