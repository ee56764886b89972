package plan

import (
	"github.com/zoobzio/sqb"
)

// Rendered is the serializable outcome of a session.
type Rendered struct {
	DQL        string              `json:"dql"`
	Aliases    []string            `json:"aliases"`
	Parameters []RenderedParameter `json:"parameters"`
}

// RenderedParameter is one bound parameter.
type RenderedParameter struct {
	Name      string `json:"name"`
	Value     any    `json:"value"`
	Type      string `json:"type,omitempty"`
	Immutable bool   `json:"immutable"`
}

// Render snapshots the session's query text, aliases and parameters.
func Render(s *sqb.Session) Rendered {
	immutable := make(map[*sqb.Parameter]bool)
	for _, p := range s.ImmutableParameters() {
		immutable[p] = true
	}
	r := Rendered{
		DQL:        s.DQL(),
		Aliases:    s.AllAliases(false),
		Parameters: make([]RenderedParameter, 0),
	}
	for _, p := range s.Parameters() {
		r.Parameters = append(r.Parameters, RenderedParameter{
			Name:      p.Name,
			Value:     p.Value,
			Type:      string(p.Type),
			Immutable: immutable[p],
		})
	}
	return r
}
