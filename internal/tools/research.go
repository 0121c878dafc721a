package tools

import (
	"context"
	"strings"

	"aegis/internal/gateway"
	"aegis/pkg/logger"
)

// snippet window around a match, in characters each side
const snippetRadius = 500

// ResearchTool performs a case-insensitive keyword search over an immutable
// filings corpus injected at construction.
type ResearchTool struct {
	corpus string
	log    *logger.Logger
}

// NewResearchTool creates the research tool over the given corpus. The corpus
// may be empty; the tool then reports unavailability instead of failing.
func NewResearchTool(corpus string) *ResearchTool {
	return &ResearchTool{
		corpus: corpus,
		log:    logger.Get().With("component", "tool", "tool", NameResearch),
	}
}

// ResearchDescriptor describes the 10-K research tool.
func ResearchDescriptor() Descriptor {
	return Descriptor{
		Name:        NameResearch,
		Description: "Queries the 10-K report for specific information.",
		Parameters: &gateway.ParameterSchema{
			Properties: map[string]gateway.Property{
				"query": {Type: "string", Description: "The search query"},
			},
			Required: []string{"query"},
		},
		Tier: TierSafe,
	}
}

// Handle searches the corpus and returns a snippet around the first match.
// It never fails: an empty corpus or a miss yields a descriptive message.
func (t *ResearchTool) Handle(_ context.Context, args Args) (string, error) {
	a := args.(ResearchArgs)
	t.log.Debugf("Searching 10-K report for %q", a.Query)

	if t.corpus == "" {
		return "ERROR: 10-K report content not available.", nil
	}

	matchIndex := strings.Index(strings.ToLower(t.corpus), strings.ToLower(a.Query))
	if matchIndex < 0 {
		return "No direct match found for the query in the 10-K report.", nil
	}

	start := matchIndex - snippetRadius
	if start < 0 {
		start = 0
	}
	end := matchIndex + snippetRadius
	if end > len(t.corpus) {
		end = len(t.corpus)
	}

	return "Found relevant section in 10-K report: " + t.corpus[start:end], nil
}
