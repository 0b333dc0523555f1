package plugins

import (
	"context"
	"time"

	duckduckgo "github.com/cloudwego/eino-ext/components/tool/duckduckgo/v2"
)

// newWebSearch wires the DuckDuckGo text search as the web_search tool.
// DuckDuckGo needs no API key, so the tool works out of the box.
func newWebSearch(ctx context.Context) (Entry, error) {
	spec := ToolSpec{
		Name:        "web_search",
		Description: "Search the web via DuckDuckGo and return the top results with titles, URLs and summaries.",
		Parameters: map[string]ParamSpec{
			"query": {
				Type:        "string",
				Description: "Search query.",
				Required:    true,
			},
		},
	}

	t, err := duckduckgo.NewTextSearchTool(ctx, &duckduckgo.Config{
		ToolName:   spec.Name,
		ToolDesc:   spec.Description,
		MaxResults: 5,
		Timeout:    15 * time.Second,
	})
	if err != nil {
		return Entry{}, err
	}
	return Entry{Spec: spec, Tool: t}, nil
}
