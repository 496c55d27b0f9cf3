package service

import (
	"context"
	"log/slog"

	"bike-storefront/internal/ctxmanage"
	"bike-storefront/internal/logkey"
	"bike-storefront/internal/query"
)

// Page is one composed listing with its diagnostics. Fields names the
// projected keys; items only carry meaningful values for those.
type Page[T any] struct {
	Items    []T        `json:"data"`
	Meta     query.Meta `json:"meta"`
	Warnings []string   `json:"warnings,omitempty"`
	Fields   []string   `json:"-"`
}

// Data renders the items restricted to Fields. Without a projection the
// items are returned as they are.
func (p *Page[T]) Data() (any, error) {
	if len(p.Fields) == 0 {
		return p.Items, nil
	}
	out := make([]map[string]any, len(p.Items))
	for i, it := range p.Items {
		row, err := query.Project(it, p.Fields)
		if err != nil {
			return nil, err
		}
		out[i] = row
	}
	return out, nil
}

func logWarnings(ctx context.Context, resource string, warnings []string) {
	for _, w := range warnings {
		slog.WarnContext(ctx, "query parameter dropped",
			slog.String(logkey.TraceID, ctxmanage.TraceID(ctx)),
			slog.String("resource", resource),
			slog.String("reason", w))
	}
}
