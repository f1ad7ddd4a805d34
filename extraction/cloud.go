package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/briangormanly/momento/config"
	"github.com/briangormanly/momento/model"
)

// CloudProvider calls a hosted chat-completion API (OpenAI or Anthropic's
// wire format) and falls back to the local heuristic provider whenever the
// API key is missing, the request fails, or the response can't be parsed -
// a cloud outage must never block ingestion.
type CloudProvider struct {
	name       string
	apiKey     string
	model      string
	baseURL    string
	client     *http.Client
	fallback   *LocalProvider
	log        *logrus.Entry
	buildBody  func(model, content string) interface{}
	endpoint   string
	headers    func(apiKey string) map[string]string
	extractRaw func(body []byte) (string, error)
}

// NewOpenAIProvider builds a CloudProvider speaking the OpenAI chat
// completions wire format.
func NewOpenAIProvider(cfg config.CloudProviderConfig, log *logrus.Entry) *CloudProvider {
	return &CloudProvider{
		name:     "openai",
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		baseURL:  cfg.BaseURL,
		client:   &http.Client{Timeout: 60 * time.Second},
		fallback: NewLocalProvider(log),
		log:      log.WithField("provider", "openai"),
		endpoint: "/chat/completions",
		buildBody: func(model, content string) interface{} {
			return map[string]interface{}{
				"model":       model,
				"temperature": 0,
				"messages": []map[string]string{
					{"role": "system", "content": "You are an expert at extracting graph entities. Return only JSON with 'entities' and 'relations'."},
					{"role": "user", "content": content},
				},
			}
		},
		headers: func(apiKey string) map[string]string {
			return map[string]string{"Authorization": "Bearer " + apiKey, "Content-Type": "application/json"}
		},
		extractRaw: func(body []byte) (string, error) {
			var decoded struct {
				Choices []struct {
					Message struct {
						Content string `json:"content"`
					} `json:"message"`
				} `json:"choices"`
			}
			if err := json.Unmarshal(body, &decoded); err != nil {
				return "", err
			}
			if len(decoded.Choices) == 0 {
				return "", fmt.Errorf("openai response contained no choices")
			}
			return decoded.Choices[0].Message.Content, nil
		},
	}
}

// NewAnthropicProvider builds a CloudProvider speaking the Anthropic
// messages wire format.
func NewAnthropicProvider(cfg config.CloudProviderConfig, log *logrus.Entry) *CloudProvider {
	return &CloudProvider{
		name:     "anthropic",
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		baseURL:  cfg.BaseURL,
		client:   &http.Client{Timeout: 60 * time.Second},
		fallback: NewLocalProvider(log),
		log:      log.WithField("provider", "anthropic"),
		endpoint: "/v1/messages",
		buildBody: func(model, content string) interface{} {
			return map[string]interface{}{
				"model":       model,
				"max_tokens":  1024,
				"temperature": 0,
				"system":      "You are part of a memory graph service. Return JSON with 'entities' and 'relations' following the provided schema.",
				"messages": []map[string]string{
					{"role": "user", "content": content},
				},
			}
		},
		headers: func(apiKey string) map[string]string {
			return map[string]string{"x-api-key": apiKey, "anthropic-version": "2023-06-01", "Content-Type": "application/json"}
		},
		extractRaw: func(body []byte) (string, error) {
			var decoded struct {
				Content []struct {
					Text string `json:"text"`
				} `json:"content"`
			}
			if err := json.Unmarshal(body, &decoded); err != nil {
				return "", err
			}
			if len(decoded.Content) == 0 {
				return "", fmt.Errorf("anthropic response contained no content blocks")
			}
			return decoded.Content[0].Text, nil
		},
	}
}

func (p *CloudProvider) Name() string { return p.name }

func (p *CloudProvider) Extract(ctx context.Context, entry model.Entity, metadata map[string]interface{}) (Result, error) {
	if p.apiKey == "" {
		p.log.Warn("API key missing; falling back to local provider")
		return p.fallback.Extract(ctx, entry, metadata)
	}

	content := sourceText(entry, metadata)
	body, err := json.Marshal(p.buildBody(p.model, content))
	if err != nil {
		p.log.WithField("error", err).Warn("failed to encode request; falling back to local provider")
		return p.fallback.Extract(ctx, entry, metadata)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+p.endpoint, bytes.NewReader(body))
	if err != nil {
		p.log.WithField("error", err).Warn("failed to build request; falling back to local provider")
		return p.fallback.Extract(ctx, entry, metadata)
	}
	for k, v := range p.headers(p.apiKey) {
		req.Header.Set(k, v)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.log.WithField("error", err).Warn("request failed; falling back to local provider")
		return p.fallback.Extract(ctx, entry, metadata)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		p.log.WithField("status", resp.StatusCode).Warn("provider returned an error status; falling back to local provider")
		return p.fallback.Extract(ctx, entry, metadata)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		p.log.WithField("error", err).Warn("failed to read response; falling back to local provider")
		return p.fallback.Extract(ctx, entry, metadata)
	}

	raw, err := p.extractRaw(buf.Bytes())
	if err != nil {
		p.log.WithField("error", err).Warn("failed to extract response text; falling back to local provider")
		return p.fallback.Extract(ctx, entry, metadata)
	}

	cleaned, err := cleanJSONResponse(raw)
	if err != nil {
		p.log.WithField("error", err).Warn("response had no JSON object; falling back to local provider")
		return p.fallback.Extract(ctx, entry, metadata)
	}

	result, err := parseExtractionPayload(p.name, p.log, cleaned)
	if err != nil {
		p.log.WithField("error", err).Warn("unable to parse response; falling back to local provider")
		return p.fallback.Extract(ctx, entry, metadata)
	}
	return result, nil
}
