package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nairaflow/connect/internal/core"
)

// LLMVerdict is the parsed model output. ModelVersion is filled in by the
// client from the provider response, not by the model itself.
type LLMVerdict struct {
	IsBusinessIncome   bool     `json:"is_business_income"`
	Confidence         float64  `json:"confidence"`
	TaxCategory        string   `json:"tax_category"`
	Reasoning          string   `json:"reasoning"`
	RiskFactors        []string `json:"risk_factors"`
	CustomerName       string   `json:"customer_name"`
	InvoiceDescription string   `json:"invoice_description"`
	TokensUsed         int      `json:"-"`
	ModelVersion       string   `json:"-"`
}

// LLMClient classifies an anonymized payload on a paid tier.
type LLMClient interface {
	Classify(ctx context.Context, anon *Anonymized, tier Tier) (*LLMVerdict, error)
}

// OpenAICompatibleClient speaks the chat-completions wire shape most hosted
// model gateways expose, with one model name per tier.
type OpenAICompatibleClient struct {
	BaseURL string
	APIKey  string
	Models  map[Tier]string
	client  *http.Client
}

// NewOpenAICompatibleClient builds the client with a 60s request timeout.
func NewOpenAICompatibleClient(baseURL, apiKey string, models map[Tier]string) *OpenAICompatibleClient {
	return &OpenAICompatibleClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Models:  models,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

const classifyPrompt = `You classify Nigerian SME bank transactions.
Given the anonymized transaction below, respond with a single JSON object:
{"is_business_income": bool, "confidence": number 0..1, "tax_category": "standard_rate"|"zero_rate"|"exempt"|"unknown", "reasoning": string, "risk_factors": [string], "customer_name": string or "", "invoice_description": string or ""}
Only set customer_name when the narration names an unredacted payer.
invoice_description is a short line suitable for an invoice the payee raises.

Narration: %s
Amount category: %s (rounded %v NGN)
Part of day: %s (%s)
Bank tier: %s`

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Classify sends the anonymized payload to the tier's model and parses its
// JSON verdict.
func (c *OpenAICompatibleClient) Classify(ctx context.Context, anon *Anonymized, tier Tier) (*LLMVerdict, error) {
	model, ok := c.Models[tier]
	if !ok {
		return nil, core.NewError(core.KindConfig, "classify.llm",
			fmt.Sprintf("no model configured for tier %s", tier))
	}

	prompt := fmt.Sprintf(classifyPrompt,
		anon.Narration, anon.AmountCategory, anon.RoundedAmount,
		anon.PartOfDay, anon.DayCategory, anon.BankTier)

	payload, err := json.Marshal(chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return nil, core.WrapError(core.KindClassification, "classify.llm", "encoding request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, core.WrapError(core.KindClassification, "classify.llm", "building request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, core.WrapError(core.KindClassification, "classify.llm", "model call failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, core.WrapError(core.KindClassification, "classify.llm", "reading response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, core.NewError(core.KindClassification, "classify.llm",
			fmt.Sprintf("model returned %d: %s", resp.StatusCode, truncate(string(body), 200)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, core.WrapError(core.KindClassification, "classify.llm", "decoding response", err)
	}
	if parsed.Error != nil {
		return nil, core.NewError(core.KindClassification, "classify.llm", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return nil, core.NewError(core.KindClassification, "classify.llm", "empty choices")
	}

	verdict, err := parseVerdict(parsed.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	verdict.TokensUsed = parsed.Usage.TotalTokens
	verdict.ModelVersion = parsed.Model
	if verdict.ModelVersion == "" {
		verdict.ModelVersion = model
	}
	return verdict, nil
}

// parseVerdict extracts the JSON object from model output, tolerating prose
// or code fences around it.
func parseVerdict(content string) (*LLMVerdict, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, core.NewError(core.KindClassification, "classify.llm", "no JSON object in model output")
	}
	var v LLMVerdict
	if err := json.Unmarshal([]byte(content[start:end+1]), &v); err != nil {
		return nil, core.WrapError(core.KindClassification, "classify.llm", "invalid model JSON", err)
	}
	return &v, nil
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
