package adapters

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"

	"github.com/askcos/prediction-gateway/internal/dispatch"
)

// NameRetroController is the retro controller.
const NameRetroController = "retro_controller"

// Retro controller backend selectors.
const (
	BackendAugmentedTransformer = "augmented_transformer"
	BackendGraph2Smiles         = "graph2smiles"
	BackendTemplateRelevance    = "template_relevance"
)

// DefaultRetroModel is the model used when the request names none.
const DefaultRetroModel = "reaxys"

// retroBackends is the controller's static selector table.
var retroBackends = map[string]string{
	BackendAugmentedTransformer: NameAugmentedTransformer,
	BackendGraph2Smiles:         NameGraph2Smiles,
	BackendTemplateRelevance:    NameTemplateRelevance,
}

// RetroControllerInput is the input of the retro controller.
// MaxNumTemplates, MaxCumProb and AttributeFilter only apply to
// template_relevance.
type RetroControllerInput struct {
	Backend         string            `json:"backend" validate:"required"`
	ModelName       string            `json:"model_name" validate:"required"`
	Smiles          []string          `json:"smiles" validate:"required,min=1,dive,required"`
	MaxNumTemplates int               `json:"max_num_templates" validate:"gt=0"`
	MaxCumProb      float64           `json:"max_cum_prob" validate:"gt=0,lte=1"`
	AttributeFilter []AttributeFilter `json:"attribute_filter" validate:"dive"`
}

// Validate checks required fields. The backend selector is checked against
// the selector table separately and fails with ErrUnsupportedBackend.
func (in *RetroControllerInput) Validate() error { return validateStruct(in) }

func defaultRetroControllerInput() *RetroControllerInput {
	return &RetroControllerInput{
		Backend:         BackendTemplateRelevance,
		ModelName:       DefaultRetroModel,
		MaxNumTemplates: DefaultMaxNumTemplates,
		MaxCumProb:      DefaultMaxCumProb,
		AttributeFilter: []AttributeFilter{},
	}
}

// RetroResult is one proposed disconnection.
type RetroResult struct {
	Outcome  string         `json:"outcome"`
	Score    float64        `json:"score"`
	Template map[string]any `json:"template"`
}

// RetroControllerRaw is what the controller receives from its delegate:
// the delegate's NormalizedResponse plus what is needed to translate it.
type RetroControllerRaw struct {
	Backend  string
	Targets  int // len(smiles) of the request
	Filters  []AttributeFilter
	Response *Response
}

// RetroController fans a retro request out to one of the retro backends.
type RetroController struct {
	identity Identity
	resolve  ResolverFunc
	backends map[string]string
	deps     Deps
}

// NewRetroController creates the controller. resolve looks up delegates
// by registry name at call time.
func NewRetroController(resolve ResolverFunc, deps Deps) *RetroController {
	return &RetroController{
		identity: Identity{
			Name:          NameRetroController,
			Prefixes:      []string{"retro/controller", "retro"},
			MethodsToBind: DefaultMethods(),
		},
		resolve:  resolve,
		backends: retroBackends,
		deps:     deps.withDefaults(),
	}
}

func (c *RetroController) Identity() Identity { return c.identity }

// Queue is only used when no backend is selected; CallAsync submits to the
// selected backend's queue.
func (c *RetroController) Queue() string { return dispatch.GenericQueue }

// Backends returns the supported backend selectors, sorted.
func (c *RetroController) Backends() []string {
	out := make([]string, 0, len(c.backends))
	for k := range c.backends {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Available reports, per backend selector, whether its target adapter is
// registered.
func (c *RetroController) Available() map[string]bool {
	out := make(map[string]bool, len(c.backends))
	for selector, name := range c.backends {
		_, err := c.resolve(name)
		out[selector] = err == nil
	}
	return out
}

func (c *RetroController) DecodeInput(body []byte) (Input, error) {
	return decodeInput(body, defaultRetroControllerInput)
}

func (c *RetroController) input(in Input) (*RetroControllerInput, error) {
	typed, ok := in.(*RetroControllerInput)
	if !ok {
		return nil, newError(ErrValidation, nil, "%s: unexpected input type %T", NameRetroController, in)
	}
	if err := typed.Validate(); err != nil {
		return nil, err
	}
	return typed, nil
}

// selectBackend maps the selector to a registered adapter. It never makes a
// network call.
func (c *RetroController) selectBackend(selector string) (Adapter, error) {
	name, ok := c.backends[selector]
	if !ok {
		return nil, newError(ErrUnsupportedBackend, nil, "unsupported retro backend %q", selector)
	}
	return c.resolve(name)
}

// TranslateInput converts the controller input into the selected backend's
// input. Fields are renamed or dropped, never recomputed.
func (c *RetroController) TranslateInput(in *RetroControllerInput) (Input, error) {
	switch in.Backend {
	case BackendAugmentedTransformer, BackendGraph2Smiles:
		return &RetroSeqInput{
			ModelName: in.ModelName,
			Smiles:    append([]string(nil), in.Smiles...),
		}, nil
	case BackendTemplateRelevance:
		return &TemplateRelevanceInput{
			ModelName:       in.ModelName,
			Smiles:          append([]string(nil), in.Smiles...),
			MaxNumTemplates: in.MaxNumTemplates,
			MaxCumProb:      in.MaxCumProb,
			AttributeFilter: append([]AttributeFilter{}, in.AttributeFilter...),
		}, nil
	default:
		return nil, newError(ErrUnsupportedBackend, nil, "unsupported retro backend %q", in.Backend)
	}
}

func (c *RetroController) CallRaw(ctx context.Context, in Input) (RawOutput, error) {
	typed, err := c.input(in)
	if err != nil {
		return nil, err
	}
	target, err := c.selectBackend(typed.Backend)
	if err != nil {
		return nil, err
	}
	targetInput, err := c.TranslateInput(typed)
	if err != nil {
		return nil, err
	}

	resp, err := target.CallSync(ctx, targetInput)
	if err != nil {
		return nil, err
	}
	return &RetroControllerRaw{
		Backend:  typed.Backend,
		Targets:  len(typed.Smiles),
		Filters:  typed.AttributeFilter,
		Response: resp,
	}, nil
}

func (c *RetroController) CallSync(ctx context.Context, in Input) (*Response, error) {
	raw, err := c.CallRaw(ctx, in)
	if err != nil {
		return nil, err
	}
	return c.Normalize(raw), nil
}

func (c *RetroController) CallAsync(ctx context.Context, in Input, priority dispatch.Priority) (string, error) {
	typed, err := c.input(in)
	if err != nil {
		return "", err
	}
	target, err := c.selectBackend(typed.Backend)
	if err != nil {
		return "", err
	}
	return submitTask(ctx, c.deps, NameRetroController, target.Queue(), typed, priority)
}

func (c *RetroController) Retrieve(ctx context.Context, handle string) (*Response, error) {
	return retrieveTask(ctx, c.deps.Broker, handle)
}

// Normalize regroups the delegate's parallel lists into one list of
// RetroResult per target SMILES and applies the attribute filters. A
// delegate result whose length differs from the number of targets is an
// upstream error (502).
func (c *RetroController) Normalize(raw RawOutput) *Response {
	r, ok := raw.(*RetroControllerRaw)
	if !ok || r == nil || r.Response == nil {
		return &Response{StatusCode: http.StatusInternalServerError, Message: "unexpected raw output type"}
	}
	result, err := ConvertRetroResult(r.Backend, r.Response.Result, r.Filters)
	if err != nil {
		return &Response{StatusCode: http.StatusInternalServerError, Message: err.Error(), Result: [][]RetroResult{}}
	}
	if len(result) != r.Targets {
		return ErrorResponse(newError(ErrUpstreamError, nil,
			"%s returned %d results for %d targets", c.backends[r.Backend], len(result), r.Targets))
	}
	return &Response{StatusCode: r.Response.StatusCode, Message: r.Response.Message, Result: result}
}

// ConvertRetroResult translates a retro backend result into the controller
// shape. The outer length equals the number of per-SMILES results.
func ConvertRetroResult(backend string, result any, filters []AttributeFilter) ([][]RetroResult, error) {
	switch backend {
	case BackendAugmentedTransformer, BackendGraph2Smiles:
		var seq RetroSeqOutput
		if err := coerce(result, &seq); err != nil {
			return nil, err
		}
		out := make([][]RetroResult, 0, len(seq))
		for _, perSmiles := range seq {
			out = append(out, regroup(minLen(len(perSmiles.Reactants), len(perSmiles.Scores)), func(i int) RetroResult {
				return RetroResult{Outcome: perSmiles.Reactants[i], Score: perSmiles.Scores[i]}
			}))
		}
		return out, nil

	case BackendTemplateRelevance:
		var tr TemplateRelevanceOutput
		if err := coerce(result, &tr); err != nil {
			return nil, err
		}
		out := make([][]RetroResult, 0, len(tr))
		for _, perSmiles := range tr {
			n := minLen(len(perSmiles.Reactants), len(perSmiles.Scores), len(perSmiles.Templates))
			records := regroup(n, func(i int) RetroResult {
				return RetroResult{
					Outcome:  perSmiles.Reactants[i],
					Score:    perSmiles.Scores[i],
					Template: perSmiles.Templates[i],
				}
			})
			out = append(out, applyFilters(records, filters))
		}
		return out, nil

	default:
		return nil, newError(ErrUnsupportedBackend, nil, "unsupported retro backend %q", backend)
	}
}

// applyFilters keeps the records whose template passes every filter.
func applyFilters(records []RetroResult, filters []AttributeFilter) []RetroResult {
	if len(filters) == 0 {
		return records
	}
	kept := records[:0]
	for _, rec := range records {
		pass := true
		for _, f := range filters {
			if !f.Match(rec.Template) {
				pass = false
				break
			}
		}
		if pass {
			kept = append(kept, rec)
		}
	}
	return kept
}

// coerce converts a Response result into dst. Results from a direct call
// already have the target type; results read back from the store are
// generic JSON values and go through a JSON round trip.
func coerce[T any](result any, dst *T) error {
	if typed, ok := result.(T); ok {
		*dst = typed
		return nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}
