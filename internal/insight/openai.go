package insight

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"
)

const (
	// unitsPerRequest keeps each prompt small; larger inputs are split and
	// analyzed in parallel.
	unitsPerRequest = 25
	maxParallel     = 3

	systemPrompt = "You are an election monitoring analyst. Answer only with what is asked."

	anomalyPrompt = `Analyze the following election polling unit data for irregularities.
Look for:
1. Accredited voters exceeding registered voters.
2. Total votes exceeding accredited voters.
3. Suspiciously high turnout (>95%).
4. One party getting >98% of votes in a competitive region.

Respond with a JSON object {"anomalies": [...]} where every item has the string
fields unitId, unitName, severity (one of high, medium, low), description and
recommendation. Return an empty array when nothing is irregular.`

	summaryPrompt = `Generate a professional, executive-level election monitoring report in Markdown.
The report should have:
1. Title & Timestamp
2. Participation Overview
3. Key Risks & Incidents Summary
4. Strategic Recommendations for the Admin Team.
Keep it concise and formal.`
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// OpenAIGateway implements Gateway with an OpenAI-compatible chat API.
type OpenAIGateway struct {
	client *openai.Client
	model  string
}

// NewOpenAIGateway creates a gateway. An empty baseURL uses the OpenAI API.
func NewOpenAIGateway(apiKey, baseURL, model string) *OpenAIGateway {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIGateway{client: openai.NewClientWithConfig(cfg), model: model}
}

type anomalyEnvelope struct {
	Anomalies []Report `json:"anomalies"`
}

// AnalyzeAnomalies asks the model for narrated anomalies. Items failing
// schema validation are dropped; a response that is not JSON is an error.
func (g *OpenAIGateway) AnalyzeAnomalies(ctx context.Context, units []UnitData) ([]Report, error) {
	if len(units) == 0 {
		return nil, nil
	}

	var (
		mu      sync.Mutex
		reports []Report
	)
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(maxParallel)
	for start := 0; start < len(units); start += unitsPerRequest {
		batch := units[start:min(start+unitsPerRequest, len(units))]
		eg.Go(func() error {
			got, err := g.analyzeBatch(ctx, batch)
			if err != nil {
				return err
			}
			mu.Lock()
			reports = append(reports, got...)
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

func (g *OpenAIGateway) analyzeBatch(ctx context.Context, units []UnitData) ([]Report, error) {
	payload, err := json.Marshal(units)
	if err != nil {
		return nil, fmt.Errorf("encode units: %w", err)
	}
	content, err := g.complete(ctx, string(payload)+"\n\n"+anomalyPrompt, true)
	if err != nil {
		return nil, err
	}
	return parseReports(content)
}

// ExecutiveSummary asks the model for a Markdown report.
func (g *OpenAIGateway) ExecutiveSummary(ctx context.Context, in SummaryInput) (string, error) {
	stats, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("encode summary input: %w", err)
	}
	content, err := g.complete(ctx, summaryPrompt+"\n\nCurrent data:\n"+string(stats), false)
	if err != nil {
		return "", err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return "", errors.New("model returned an empty report")
	}
	return content, nil
}

func (g *OpenAIGateway) complete(ctx context.Context, prompt string, jsonMode bool) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}
	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// parseReports decodes a model response, accepting either the envelope or a
// bare array.
func parseReports(content string) ([]Report, error) {
	content = strings.TrimSpace(content)
	var raw []Report
	if strings.HasPrefix(content, "[") {
		if err := json.Unmarshal([]byte(content), &raw); err != nil {
			return nil, fmt.Errorf("decode anomaly array: %w", err)
		}
	} else {
		var env anomalyEnvelope
		if err := json.Unmarshal([]byte(content), &env); err != nil {
			return nil, fmt.Errorf("decode anomaly envelope: %w", err)
		}
		raw = env.Anomalies
	}

	out := make([]Report, 0, len(raw))
	for _, r := range raw {
		r.Severity = strings.ToLower(strings.TrimSpace(r.Severity))
		if err := validate.Struct(r); err != nil {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}
