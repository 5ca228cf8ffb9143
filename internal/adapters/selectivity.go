package adapters

import "net/http"

// NameQMGNN is the general selectivity QM-GNN backend.
const NameQMGNN = "general_selectivity_qm_gnn"

// Atom mapping backends accepted by QM-GNN.
const DefaultAtomMapBackend = "wln"

// SelectivityInput is the input of the QM-GNN backend.
type SelectivityInput struct {
	Smiles         string `json:"smiles" validate:"required"`
	AtomMapBackend string `json:"atom_map_backend" validate:"required,oneof=indigo rxnmapper wln"`
}

// Validate checks required fields.
func (in *SelectivityInput) Validate() error { return validateStruct(in) }

// SelectivityResult is one ranked product.
type SelectivityResult struct {
	Smiles string  `json:"smiles"`
	Prob   float64 `json:"prob"`
	Rank   int     `json:"rank"`
}

// SelectivityOutput is the downstream shape. A non-empty Error means the
// backend could not score the reaction.
type SelectivityOutput struct {
	Error   string              `json:"error"`
	Status  string              `json:"status"`
	Results []SelectivityResult `json:"results"`
}

func normalizeSelectivity(raw SelectivityOutput) *Response {
	results := raw.Results
	if results == nil {
		results = []SelectivityResult{}
	}
	if raw.Error != "" {
		return &Response{StatusCode: http.StatusInternalServerError, Message: raw.Error, Result: results}
	}
	return &Response{StatusCode: http.StatusOK, Result: results}
}

// NewQMGNN creates the general selectivity QM-GNN adapter.
func NewQMGNN(cfg BackendConfig, deps Deps) Adapter {
	return newBackend(backendSpec[*SelectivityInput, SelectivityOutput]{
		name:     NameQMGNN,
		prefixes: []string{"general_selectivity/qm_gnn"},
		defaults: func() *SelectivityInput {
			return &SelectivityInput{AtomMapBackend: DefaultAtomMapBackend}
		},
		selector:  func(*SelectivityInput) string { return "qm_predictor" },
		normalize: normalizeSelectivity,
	}, cfg, deps)
}
