// internal/pricing/oracle/oracle.go
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"pricing-workers/internal/common/llm"
	"pricing-workers/internal/common/logger"
	"pricing-workers/internal/common/metrics"
	"pricing-workers/internal/models"
)

// maxCandidates bounds how many search results one select-best call sees.
const maxCandidates = 5

// Completer is the narrow slice of the LLM client the oracle needs.
type Completer interface {
	Complete(ctx context.Context, prompt string, temperature float32) (string, error)
}

// Candidate is what the oracle sees of a product: enough to judge a
// match, nothing more. Both retail Products and cached materials reduce
// to this shape.
type Candidate struct {
	Name  string
	Brand string
	Price float64
}

// CandidateFromProduct reduces a retail listing to an oracle candidate.
func CandidateFromProduct(p models.Product) Candidate {
	return Candidate{Name: p.Name, Brand: p.Brand, Price: p.Price}
}

// CandidatesFromProducts maps a result slice into oracle candidates.
func CandidatesFromProducts(products []models.Product) []Candidate {
	out := make([]Candidate, len(products))
	for i, p := range products {
		out[i] = CandidateFromProduct(p)
	}
	return out
}

type Config struct {
	MatchTemperature float32
	AliasTemperature float32
	Timeout          time.Duration
}

// Oracle scores how well candidate products answer a free-text query.
// Every failure path returns a conservative moderate-confidence default;
// an oracle failure is never a hard error for the pipeline.
type Oracle struct {
	config *Config
	llm    Completer
	logger logger.Logger
}

func New(config *Config, completer Completer, log logger.Logger) *Oracle {
	return &Oracle{
		config: config,
		llm:    completer,
		logger: log.WithFields(map[string]interface{}{"component": "oracle"}),
	}
}

// Selection is the outcome of a select-best call.
type Selection struct {
	Index      int     `json:"index"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// Score is the outcome of a score-one call.
type Score struct {
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// AliasSet is the outcome of an alias-generation call.
type AliasSet struct {
	Aliases     []string `json:"aliases"`
	Description string   `json:"description"`
}

// SelectBest picks the candidate that best matches the query. Candidates
// beyond the first five are ignored. Defaults to the first result with
// confidence 0.5 when the model cannot be reached or parsed.
func (o *Oracle) SelectBest(ctx context.Context, query string, candidates []Candidate) Selection {
	fallback := Selection{Index: 0, Confidence: 0.5, Reasoning: "defaulting to first result"}
	if len(candidates) == 0 {
		return Selection{Index: -1, Confidence: 0, Reasoning: "no candidates"}
	}
	if len(candidates) > maxCandidates {
		candidates = candidates[:maxCandidates]
	}

	prompt := buildSelectPrompt(query, candidates)
	raw, err := o.complete(ctx, prompt, o.config.MatchTemperature)
	if err != nil {
		o.logger.Warn("select-best call failed, using default", map[string]interface{}{
			"query": query,
			"error": err.Error(),
		})
		metrics.OracleCallsTotal.WithLabelValues("select_best", "fallback").Inc()
		return fallback
	}

	var sel Selection
	if err := unmarshalModelJSON(raw, &sel); err != nil {
		o.logger.Warn("select-best response unparseable, using default", map[string]interface{}{
			"query": query,
			"error": err.Error(),
		})
		metrics.OracleCallsTotal.WithLabelValues("select_best", "fallback").Inc()
		return fallback
	}

	if sel.Index < 0 || sel.Index >= len(candidates) {
		metrics.OracleCallsTotal.WithLabelValues("select_best", "fallback").Inc()
		return fallback
	}
	sel.Confidence = clampConfidence(sel.Confidence)
	metrics.OracleCallsTotal.WithLabelValues("select_best", "ok").Inc()
	return sel
}

// ScoreOne scores a single query/candidate pairing. Defaults to
// confidence 0.5 on any failure.
func (o *Oracle) ScoreOne(ctx context.Context, query string, candidate Candidate) Score {
	fallback := Score{Confidence: 0.5, Reasoning: "moderate confidence, unconfirmed"}

	prompt := buildScorePrompt(query, candidate)
	raw, err := o.complete(ctx, prompt, o.config.MatchTemperature)
	if err != nil {
		o.logger.Warn("score-one call failed, using default", map[string]interface{}{
			"query": query,
			"error": err.Error(),
		})
		metrics.OracleCallsTotal.WithLabelValues("score_one", "fallback").Inc()
		return fallback
	}

	var score Score
	if err := unmarshalModelJSON(raw, &score); err != nil {
		o.logger.Warn("score-one response unparseable, using default", map[string]interface{}{
			"query": query,
			"error": err.Error(),
		})
		metrics.OracleCallsTotal.WithLabelValues("score_one", "fallback").Inc()
		return fallback
	}

	score.Confidence = clampConfidence(score.Confidence)
	metrics.OracleCallsTotal.WithLabelValues("score_one", "ok").Inc()
	return score
}

// GenerateAliases produces lowercase search aliases and a one-sentence
// description for a canonical product name. The original query is always
// part of the returned alias set.
func (o *Oracle) GenerateAliases(ctx context.Context, name, query string) AliasSet {
	loweredQuery := models.NormalizeName(query)
	fallback := AliasSet{Aliases: []string{loweredQuery}}

	prompt := buildAliasPrompt(name, query)
	raw, err := o.complete(ctx, prompt, o.config.AliasTemperature)
	if err != nil {
		o.logger.Warn("alias generation failed, using query only", map[string]interface{}{
			"name":  name,
			"error": err.Error(),
		})
		metrics.OracleCallsTotal.WithLabelValues("aliases", "fallback").Inc()
		return fallback
	}

	var set AliasSet
	if err := unmarshalModelJSON(raw, &set); err != nil {
		metrics.OracleCallsTotal.WithLabelValues("aliases", "fallback").Inc()
		return fallback
	}

	for i, a := range set.Aliases {
		set.Aliases[i] = models.NormalizeName(a)
	}
	if !containsString(set.Aliases, loweredQuery) {
		set.Aliases = append(set.Aliases, loweredQuery)
	}
	metrics.OracleCallsTotal.WithLabelValues("aliases", "ok").Inc()
	return set
}

func (o *Oracle) complete(ctx context.Context, prompt string, temperature float32) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.config.Timeout)
	defer cancel()
	return o.llm.Complete(ctx, prompt, temperature)
}

func unmarshalModelJSON(raw string, v interface{}) error {
	payload, err := llm.ExtractJSON(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(payload), v)
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func buildSelectPrompt(query string, candidates []Candidate) string {
	var sb strings.Builder
	sb.WriteString("You are matching construction materials to retail products.\n")
	fmt.Fprintf(&sb, "Query: %q\n\nCandidates:\n", query)
	for i, c := range candidates {
		fmt.Fprintf(&sb, "%d. %s", i, c.Name)
		if c.Brand != "" {
			fmt.Fprintf(&sb, " (brand: %s)", c.Brand)
		}
		if c.Price > 0 {
			fmt.Fprintf(&sb, " - $%.2f", c.Price)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\nPick the single best match for the query.\n")
	sb.WriteString(`Respond with JSON only: {"index": <candidate number>, "confidence": <0..1>, "reasoning": "<one sentence>"}`)
	return sb.String()
}

func buildScorePrompt(query string, candidate Candidate) string {
	var sb strings.Builder
	sb.WriteString("You are matching construction materials to retail products.\n")
	fmt.Fprintf(&sb, "Query: %q\nCandidate: %s", query, candidate.Name)
	if candidate.Brand != "" {
		fmt.Fprintf(&sb, " (brand: %s)", candidate.Brand)
	}
	if candidate.Price > 0 {
		fmt.Fprintf(&sb, " - $%.2f", candidate.Price)
	}
	sb.WriteString("\n")
	sb.WriteString("\nHow confident are you that the candidate is the product the query asks for?\n")
	sb.WriteString(`Respond with JSON only: {"confidence": <0..1>, "reasoning": "<one sentence>"}`)
	return sb.String()
}

func buildAliasPrompt(name, query string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Product: %q\nOriginal search query: %q\n\n", name, query)
	sb.WriteString("Generate 3-6 short lowercase alias strings contractors might use to search for this product, plus a one-sentence description.\n")
	sb.WriteString(`Respond with JSON only: {"aliases": ["..."], "description": "..."}`)
	return sb.String()
}
