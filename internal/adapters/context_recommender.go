package adapters

import "net/http"

// NameContextRecommender is the graph condition recommender backend.
const NameContextRecommender = "context_recommender_graph"

// DefaultNumConditions is how many condition sets are requested by default.
const DefaultNumConditions = 10

// ContextRecommenderInput is the input of the condition recommender.
type ContextRecommenderInput struct {
	Smiles      string   `json:"smiles" validate:"required"`
	Reagents    []string `json:"reagents"`
	NConditions int      `json:"n_conditions" validate:"gt=0"`
}

// Validate checks required fields.
func (in *ContextRecommenderInput) Validate() error { return validateStruct(in) }

// ContextRecommenderResult is one recommended condition set.
type ContextRecommenderResult struct {
	Agents      []any   `json:"agents"`
	Temperature float64 `json:"temperature"`
	Score       float64 `json:"score"`
}

// ContextRecommenderOutput is the downstream shape.
type ContextRecommenderOutput []ContextRecommenderResult

// NewContextRecommender creates the graph context recommender adapter.
func NewContextRecommender(cfg BackendConfig, deps Deps) Adapter {
	return newBackend(backendSpec[*ContextRecommenderInput, ContextRecommenderOutput]{
		name:     NameContextRecommender,
		prefixes: []string{"context_recommender/v2/condition/GRAPH"},
		defaults: func() *ContextRecommenderInput {
			return &ContextRecommenderInput{Reagents: []string{}, NConditions: DefaultNumConditions}
		},
		selector: func(*ContextRecommenderInput) string { return "api/v2/condition/GRAPH" },
		normalize: func(raw ContextRecommenderOutput) *Response {
			if raw == nil {
				raw = ContextRecommenderOutput{}
			}
			return &Response{StatusCode: http.StatusOK, Result: raw}
		},
	}, cfg, deps)
}
