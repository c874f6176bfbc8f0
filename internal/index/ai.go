package index

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/clutter-sh/clutter/internal/schema"
)

// defaultModel is used when no model is configured.
const defaultModel = "claude-sonnet-4-0"

// aiCandidateLimit bounds how many index hits are offered to the model.
const aiCandidateLimit = 40

// AISearcher reranks index hits with a language model, for queries like
// "that tax document from last spring" that substring search cannot
// express.
type AISearcher struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewAISearcher creates a searcher. The API key is read from the
// environment by the client. model may be empty.
func NewAISearcher(model string) *AISearcher {
	if model == "" {
		model = defaultModel
	}
	return &AISearcher{
		client: anthropic.NewClient(),
		model:  anthropic.Model(model),
	}
}

// Search runs the plain index query first, then asks the model to pick
// the candidates that actually match the intent of the query. On an
// empty candidate set the model is not consulted.
func (a *AISearcher) Search(ctx context.Context, ix *Indexer, query string) ([]*schema.FileRecord, error) {
	candidates, err := ix.Find(ctx, firstToken(query), aiCandidateLimit)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		// Nothing matched the literal token; widen to the most recent
		// files so the model still has material to choose from.
		candidates, err = ix.store.RecentFiles(ctx, aiCandidateLimit)
		if err != nil || len(candidates) == 0 {
			return nil, err
		}
	}
	return a.Rerank(ctx, query, candidates)
}

// Rerank asks the model which of the candidate files match the query and
// returns them in the model's order.
func (a *AISearcher) Rerank(ctx context.Context, query string, candidates []*schema.FileRecord) ([]*schema.FileRecord, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	if len(candidates) > aiCandidateLimit {
		candidates = candidates[:aiCandidateLimit]
	}

	var sb strings.Builder
	for i, r := range candidates {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, r.Path)
	}

	prompt := fmt.Sprintf(
		"A user is looking for files matching this description:\n%s\n\n"+
			"Candidate files:\n%s\n"+
			"Reply with only the numbers of the matching files, best match first, "+
			"comma-separated. Reply with NONE if nothing matches.",
		query, sb.String())

	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: 256,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("ai search request failed: %w", err)
	}

	var reply strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			reply.WriteString(block.Text)
		}
	}
	return pickByNumbers(reply.String(), candidates), nil
}

// pickByNumbers parses a comma-separated number list and maps it back to
// candidates. Out-of-range and duplicate numbers are ignored.
func pickByNumbers(reply string, candidates []*schema.FileRecord) []*schema.FileRecord {
	reply = strings.TrimSpace(reply)
	if reply == "" || strings.EqualFold(reply, "NONE") {
		return nil
	}

	seen := make(map[int]bool)
	var out []*schema.FileRecord
	for _, field := range strings.FieldsFunc(reply, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n'
	}) {
		n, err := strconv.Atoi(strings.TrimSuffix(field, "."))
		if err != nil {
			continue
		}
		if n < 1 || n > len(candidates) || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, candidates[n-1])
	}
	return out
}

// firstToken extracts the first word of a natural-language query for the
// literal pre-filter pass.
func firstToken(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return query
	}
	return fields[0]
}
