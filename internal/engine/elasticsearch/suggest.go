package elasticsearch

import (
	"context"
)

// Suggest runs a match query on name and returns up to limit distinct
// names in score order.
func (e *Engine) Suggest(ctx context.Context, name string, limit int) ([]string, error) {
	resp, err := e.search(ctx, "suggest", buildSuggestQuery(name, limit))
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(resp.Hits.Hits))
	for _, hit := range resp.Hits.Hits {
		names = append(names, hit.Source.Name)
	}
	return names, nil
}
