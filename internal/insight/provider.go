// File: internal/insight/provider.go
package insight

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/chainsight-io/signal-engine/internal/config"
	"github.com/chainsight-io/signal-engine/internal/models"
	"github.com/chainsight-io/signal-engine/pkg/utils"
)

// Request carries one signal group to a text provider. Prompt is the
// rendered instruction text; the structured fields let offline providers
// produce deterministic output without parsing the prompt back.
type Request struct {
	SignalType  models.SignalType
	BlockHeight uint64
	Signals     []*models.Signal
	Prompt      string
}

// Response is the provider's structured answer. All three fields are
// required; the generator rejects responses missing any of them.
type Response struct {
	Headline              string `json:"headline"`
	Summary               string `json:"summary"`
	ConfidenceExplanation string `json:"confidence_explanation"`
}

// Provider turns a signal group into insight text
type Provider interface {
	Name() string
	Generate(ctx context.Context, req *Request) (*Response, error)
}

// NewProvider creates a text provider from configuration
func NewProvider(cfg *config.InsightConfig) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "anthropic":
		if cfg.APIKey == "" {
			return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Anthropic provider requires an API key", "")
		}
		return newAnthropicProvider(cfg), nil
	case "openai":
		if cfg.APIKey == "" {
			return nil, utils.NewAppError(utils.ErrCodeConfiguration, "OpenAI provider requires an API key", "")
		}
		return newOpenAIProvider(cfg), nil
	case "template", "":
		return &TemplateProvider{}, nil
	default:
		return nil, utils.NewAppError(utils.ErrCodeConfiguration,
			fmt.Sprintf("Unsupported insight provider: %s", cfg.Provider),
			"supported providers: anthropic, openai, template")
	}
}

// anthropicProvider calls the Anthropic messages API
type anthropicProvider struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

func newAnthropicProvider(cfg *config.InsightConfig) *anthropicProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.anthropic.com/v1/messages"
	}
	model := cfg.Model
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	return &anthropicProvider{
		apiKey:  cfg.APIKey,
		model:   model,
		baseURL: baseURL,
		client:  &http.Client{Timeout: cfg.RequestTimeout},
	}
}

func (p *anthropicProvider) Name() string {
	return "anthropic"
}

func (p *anthropicProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	body, err := json.Marshal(map[string]interface{}{
		"model":      p.model,
		"max_tokens": 1024,
		"messages": []map[string]string{
			{"role": "user", "content": req.Prompt},
		},
	})
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeProvider, "Failed to encode provider request", err.Error())
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeProvider, "Failed to build provider request", err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeProvider, "Provider request failed", err.Error())
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, utils.NewAppError(utils.ErrCodeProvider,
			fmt.Sprintf("Provider returned status %d", resp.StatusCode), string(respBody))
	}

	var result struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeProvider, "Failed to decode provider response", err.Error())
	}
	if len(result.Content) == 0 {
		return nil, utils.NewAppError(utils.ErrCodeProvider, "Provider returned an empty response", "")
	}

	return parseResponseText(result.Content[0].Text)
}

// openAIProvider calls the OpenAI chat completions API
type openAIProvider struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

func newOpenAIProvider(cfg *config.InsightConfig) *openAIProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1/chat/completions"
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o"
	}
	return &openAIProvider{
		apiKey:  cfg.APIKey,
		model:   model,
		baseURL: baseURL,
		client:  &http.Client{Timeout: cfg.RequestTimeout},
	}
}

func (p *openAIProvider) Name() string {
	return "openai"
}

func (p *openAIProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	body, err := json.Marshal(map[string]interface{}{
		"model": p.model,
		"messages": []map[string]string{
			{"role": "user", "content": req.Prompt},
		},
		"max_tokens": 1024,
	})
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeProvider, "Failed to encode provider request", err.Error())
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeProvider, "Failed to build provider request", err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeProvider, "Provider request failed", err.Error())
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, utils.NewAppError(utils.ErrCodeProvider,
			fmt.Sprintf("Provider returned status %d", resp.StatusCode), string(respBody))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeProvider, "Failed to decode provider response", err.Error())
	}
	if len(result.Choices) == 0 {
		return nil, utils.NewAppError(utils.ErrCodeProvider, "Provider returned an empty response", "")
	}

	return parseResponseText(result.Choices[0].Message.Content)
}

// TemplateProvider renders deterministic text from the signal group
// without any network calls. It is the default and the fallback for
// environments without API credentials.
type TemplateProvider struct{}

func (p *TemplateProvider) Name() string {
	return "template"
}

func (p *TemplateProvider) Generate(_ context.Context, req *Request) (*Response, error) {
	if len(req.Signals) == 0 {
		return nil, utils.NewAppError(utils.ErrCodeProvider, "Cannot generate insight for an empty signal group", "")
	}

	top := req.Signals[0]
	for _, s := range req.Signals[1:] {
		if s.Confidence > top.Confidence {
			top = s
		}
	}

	headline := fmt.Sprintf("%s at block %d",
		templateHeadlines[req.SignalType], req.BlockHeight)

	details := make([]string, 0, 3)
	for _, key := range []string{"entity_name", "whale_address", "pool_name", "forecast_kind"} {
		if v, ok := top.Metadata[key].(string); ok && v != "" {
			details = append(details, fmt.Sprintf("%s=%s", key, v))
			break
		}
	}
	if amount, ok := top.Metadata["amount"].(float64); ok {
		details = append(details, fmt.Sprintf("amount=%.2f BTC", amount))
	}
	sort.Strings(details)

	summary := fmt.Sprintf("%d %s signal(s) observed at block %d", len(req.Signals), req.SignalType, req.BlockHeight)
	if len(details) > 0 {
		summary += " (" + strings.Join(details, ", ") + ")"
	}
	summary += "."

	explanation := fmt.Sprintf("Top signal confidence %.2f across %d signal(s) in the group.",
		top.Confidence, len(req.Signals))

	return &Response{
		Headline:              headline,
		Summary:               summary,
		ConfidenceExplanation: explanation,
	}, nil
}

var templateHeadlines = map[models.SignalType]string{
	models.SignalTypeMempool:    "Mempool fee spike",
	models.SignalTypeExchange:   "Unusual exchange flow",
	models.SignalTypeMiner:      "Mining pool treasury movement",
	models.SignalTypeWhale:      "Whale accumulation",
	models.SignalTypeTreasury:   "Corporate treasury activity",
	models.SignalTypePredictive: "Forward-looking market indicator",
}

// parseResponseText extracts the structured response from an LLM reply,
// tolerating markdown code fences around the JSON object.
func parseResponseText(text string) (*Response, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, utils.NewAppError(utils.ErrCodeProvider, "Provider response contains no JSON object", text)
	}

	var response Response
	if err := json.Unmarshal([]byte(text[start:end+1]), &response); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeProvider, "Failed to parse provider response JSON", err.Error())
	}
	return &response, nil
}
