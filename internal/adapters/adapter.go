// Package adapters exposes prediction backends through one uniform contract.
//
// DESIGN: Every backend has different HTTP shapes. An Adapter hides them
// behind the same operations:
//
//   - CallRaw:   one POST to {prediction_url}/{selector}, backend's own shape
//   - Normalize: pure mapping RawOutput -> Response
//   - CallSync:  CallRaw + Normalize
//   - CallAsync: validate, submit (name, input) to the dispatch broker
//   - Retrieve:  exchange a task handle for the stored Response
//
// A Controller is an Adapter that selects another Adapter from the Registry
// based on its input and translates shapes across the boundary.
//
// FLOW:
//  1. Bootstrap builds backends + controllers into an immutable Registry
//  2. Gateway resolves the adapter per route prefix and calls DecodeInput
//  3. Gateway calls CallSync / CallAsync / Retrieve
//  4. Worker pools execute async tasks through Registry.Executor
//
// To add a backend: define Input/RawOutput/Result types, a backendSpec and
// register it in Bootstrap.
package adapters

import (
	"context"
	"time"

	"github.com/askcos/prediction-gateway/internal/dispatch"
)

// Operation names bound as routes under every prefix.
const (
	OpCallSync             = "call-sync"
	OpCallAsync            = "call-async"
	OpRetrieve             = "retrieve"
	OpCallSyncWithoutToken = "call-sync-without-token"
)

// Identity describes how an adapter is registered and routed.
// Immutable after registration.
type Identity struct {
	Name          string              // globally unique
	Prefixes      []string            // route namespaces, first is canonical
	MethodsToBind map[string][]string // operation -> HTTP verbs
}

// DefaultMethods returns the operations every adapter binds.
func DefaultMethods() map[string][]string {
	return map[string][]string{
		OpCallSync:             {"POST"},
		OpCallAsync:            {"POST"},
		OpRetrieve:             {"GET"},
		OpCallSyncWithoutToken: {"GET", "POST"},
	}
}

// Input is a decoded, validated request value.
type Input interface {
	Validate() error
}

// RawOutput is a backend's own response shape.
type RawOutput any

// Response is the NormalizedResponse: the only shape returned to callers.
type Response struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Result     any    `json:"result"`
}

// Adapter is the uniform backend contract. Implementations are safe for
// concurrent use.
type Adapter interface {
	// Identity returns the registration identity.
	Identity() Identity

	// Queue returns the dispatch queue for async work.
	Queue() string

	// DecodeInput parses a request body into this adapter's Input, applying
	// defaults and validating it. No network call is made.
	DecodeInput(body []byte) (Input, error)

	// CallRaw issues one synchronous backend call.
	CallRaw(ctx context.Context, in Input) (RawOutput, error)

	// CallSync is CallRaw followed by Normalize.
	CallSync(ctx context.Context, in Input) (*Response, error)

	// CallAsync submits the input for background execution and returns
	// the task handle without waiting for the backend.
	CallAsync(ctx context.Context, in Input, priority dispatch.Priority) (string, error)

	// Retrieve returns the stored Response for handle, ErrPending while the
	// task runs, or ErrNotFound for unknown or expired handles.
	Retrieve(ctx context.Context, handle string) (*Response, error)

	// Normalize maps a RawOutput into a Response. Pure and total.
	Normalize(raw RawOutput) *Response
}

// BackendConfig configures one backend adapter.
type BackendConfig struct {
	Enabled             bool          `yaml:"enabled"`
	PredictionURL       string        `yaml:"prediction_url"`
	Timeout             time.Duration `yaml:"timeout"`
	AvailableModelNames []string      `yaml:"available_model_names"`
	Queue               string        `yaml:"queue"` // default: adapter name
	Signing             SigningConfig `yaml:"signing"`
}

// SigningConfig enables request signing for a backend.
type SigningConfig struct {
	Type    string `yaml:"type"`    // "" or "sigv4"
	Region  string `yaml:"region"`  // sigv4 region
	Service string `yaml:"service"` // sigv4 service, e.g. sagemaker
}

// SigningSigV4 selects AWS SigV4 request signing.
const SigningSigV4 = "sigv4"

// Validate checks the backend configuration. name is used in messages.
func (c *BackendConfig) Validate(name string) error {
	if !c.Enabled {
		return nil
	}
	if c.PredictionURL == "" {
		return newError(ErrValidation, nil, "backends.%s.prediction_url is required", name)
	}
	if c.Timeout < 0 {
		return newError(ErrValidation, nil, "backends.%s.timeout must not be negative", name)
	}
	switch c.Signing.Type {
	case "", SigningSigV4:
	default:
		return newError(ErrValidation, nil, "backends.%s.signing.type %q is not supported", name, c.Signing.Type)
	}
	return nil
}

// allowsModel reports whether model is permitted. An empty set allows all.
func (c *BackendConfig) allowsModel(model string) bool {
	if len(c.AvailableModelNames) == 0 {
		return true
	}
	for _, m := range c.AvailableModelNames {
		if m == model {
			return true
		}
	}
	return false
}
