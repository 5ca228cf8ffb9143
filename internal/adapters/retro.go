package adapters

import "net/http"

// Backend names.
const (
	NameAugmentedTransformer = "retro_augmented_transformer"
	NameGraph2Smiles         = "retro_graph2smiles"
	NameTemplateRelevance    = "retro_template_relevance"
)

// =============================================================================
// SEQUENCE MODELS (Augmented Transformer, Graph2SMILES)
// =============================================================================

// RetroSeqInput is the input of the sequence-model retro backends.
type RetroSeqInput struct {
	ModelName string   `json:"model_name" validate:"required"`
	Smiles    []string `json:"smiles" validate:"required,min=1,dive,required"`
}

// Validate checks required fields.
func (in *RetroSeqInput) Validate() error { return validateStruct(in) }

// RetroSeqResult holds the predictions for one target SMILES.
type RetroSeqResult struct {
	Reactants []string  `json:"reactants"`
	Scores    []float64 `json:"scores"`
}

// RetroSeqOutput is the downstream shape after RenameProductsToReactants.
type RetroSeqOutput []RetroSeqResult

func retroSeqSpec(name, prefix string) backendSpec[*RetroSeqInput, RetroSeqOutput] {
	return backendSpec[*RetroSeqInput, RetroSeqOutput]{
		name:     name,
		prefixes: []string{prefix},
		defaults: func() *RetroSeqInput { return &RetroSeqInput{} },
		selector: func(in *RetroSeqInput) string { return in.ModelName },
		model:    func(in *RetroSeqInput) string { return in.ModelName },
		ingest:   RenameProductsToReactants,
		normalize: func(raw RetroSeqOutput) *Response {
			if raw == nil {
				raw = RetroSeqOutput{}
			}
			return &Response{StatusCode: http.StatusOK, Result: raw}
		},
	}
}

// NewAugmentedTransformer creates the Augmented Transformer retro adapter.
func NewAugmentedTransformer(cfg BackendConfig, deps Deps) Adapter {
	return newBackend(retroSeqSpec(NameAugmentedTransformer, "retro/augmented_transformer"), cfg, deps)
}

// NewGraph2Smiles creates the Graph2SMILES retro adapter.
func NewGraph2Smiles(cfg BackendConfig, deps Deps) Adapter {
	return newBackend(retroSeqSpec(NameGraph2Smiles, "retro/graph2smiles"), cfg, deps)
}

// =============================================================================
// TEMPLATE RELEVANCE
// =============================================================================

// AttributeFilter drops template results whose attribute fails the
// comparison. Operator is one of >, >=, <, <=, ==.
type AttributeFilter struct {
	Name     string  `json:"name" validate:"required"`
	Operator string  `json:"logic" validate:"required,oneof=> >= < <= =="`
	Value    float64 `json:"value"`
}

// Match reports whether attrs[Name] is numeric and satisfies the filter.
func (f AttributeFilter) Match(attrs map[string]any) bool {
	v, ok := toFloat(attrs[f.Name])
	if !ok {
		return false
	}
	switch f.Operator {
	case ">":
		return v > f.Value
	case ">=":
		return v >= f.Value
	case "<":
		return v < f.Value
	case "<=":
		return v <= f.Value
	case "==":
		return v == f.Value
	default:
		return false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	default:
		return 0, false
	}
}

// TemplateRelevanceInput is the input of the template relevance backend.
type TemplateRelevanceInput struct {
	ModelName       string            `json:"model_name" validate:"required"`
	Smiles          []string          `json:"smiles" validate:"required,min=1,dive,required"`
	MaxNumTemplates int               `json:"max_num_templates" validate:"gt=0"`
	MaxCumProb      float64           `json:"max_cum_prob" validate:"gt=0,lte=1"`
	AttributeFilter []AttributeFilter `json:"attribute_filter" validate:"dive"`
}

// Validate checks required fields and ranges.
func (in *TemplateRelevanceInput) Validate() error { return validateStruct(in) }

// Template relevance defaults.
const (
	DefaultMaxNumTemplates = 1000
	DefaultMaxCumProb      = 0.999
)

func defaultTemplateRelevanceInput() *TemplateRelevanceInput {
	return &TemplateRelevanceInput{
		MaxNumTemplates: DefaultMaxNumTemplates,
		MaxCumProb:      DefaultMaxCumProb,
		AttributeFilter: []AttributeFilter{},
	}
}

// TemplateRelevanceResult holds the applied templates for one target.
// Templates, Reactants and Scores are parallel lists.
type TemplateRelevanceResult struct {
	Templates []map[string]any `json:"templates"`
	Reactants []string         `json:"reactants"`
	Scores    []float64        `json:"scores"`
}

// TemplateRelevanceOutput is the downstream shape.
type TemplateRelevanceOutput []TemplateRelevanceResult

// NewTemplateRelevance creates the template relevance retro adapter.
func NewTemplateRelevance(cfg BackendConfig, deps Deps) Adapter {
	return newBackend(backendSpec[*TemplateRelevanceInput, TemplateRelevanceOutput]{
		name:     NameTemplateRelevance,
		prefixes: []string{"retro/template_relevance"},
		defaults: defaultTemplateRelevanceInput,
		selector: func(in *TemplateRelevanceInput) string { return in.ModelName },
		model:    func(in *TemplateRelevanceInput) string { return in.ModelName },
		normalize: func(raw TemplateRelevanceOutput) *Response {
			if raw == nil {
				raw = TemplateRelevanceOutput{}
			}
			return &Response{StatusCode: http.StatusOK, Result: raw}
		},
	}, cfg, deps)
}
