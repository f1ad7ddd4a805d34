package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/briangormanly/momento/config"
	"github.com/briangormanly/momento/model"
)

// OllamaProvider prompts a self-hosted Ollama model and parses its JSON
// response into entities and relations.
type OllamaProvider struct {
	baseURL             string
	model               string
	timeout             time.Duration
	maxRetries          int
	keepAlive           string
	contextWindowTokens int
	maxChars            int
	client              *http.Client
	log                 *logrus.Entry
}

func NewOllamaProvider(cfg config.OllamaConfig, log *logrus.Entry) *OllamaProvider {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}
	return &OllamaProvider{
		baseURL:             strings.TrimSuffix(cfg.BaseURL, "/"),
		model:               cfg.Model,
		timeout:             cfg.Timeout,
		maxRetries:          maxRetries,
		keepAlive:           cfg.KeepAlive,
		contextWindowTokens: cfg.ContextWindowTokens,
		maxChars:            cfg.ContextWindowTokens * 4,
		client:              &http.Client{Timeout: cfg.Timeout},
		log:                 log.WithField("provider", "ollama"),
	}
}

func (p *OllamaProvider) Name() string { return "ollama" }

func (p *OllamaProvider) Extract(ctx context.Context, entry model.Entity, metadata map[string]interface{}) (Result, error) {
	text, err := p.prepareText(entry, metadata)
	if err != nil {
		return Result{}, err
	}

	payload := map[string]interface{}{
		"model":      p.model,
		"stream":     false,
		"prompt":     p.buildPrompt(entry, text),
		"keep_alive": p.keepAlive,
		"options":    map[string]interface{}{"num_ctx": minInt(p.contextWindowTokens, 128000)},
	}

	raw, err := p.performRequest(ctx, payload)
	if err != nil {
		return Result{}, err
	}

	cleaned, err := cleanJSONResponse(raw)
	if err != nil {
		return Result{}, newProviderError(p.Name(), "response did not contain a JSON object", err)
	}
	return parseExtractionPayload(p.Name(), p.log, cleaned)
}

func (p *OllamaProvider) performRequest(ctx context.Context, payload map[string]interface{}) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", newProviderError(p.Name(), "failed to encode request", err)
	}

	var lastErr error
	for attempt := 1; attempt <= p.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/generate", bytes.NewReader(body))
		if err != nil {
			return "", newProviderError(p.Name(), "failed to build request", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := p.client.Do(req)
		if err != nil {
			lastErr = err
			if !isTimeoutErr(err) {
				break
			}
			p.log.WithField("attempt", attempt).Warn("ollama request timed out, retrying")
			continue
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			lastErr = fmt.Errorf("ollama returned status %d", resp.StatusCode)
			break
		}

		var decoded struct {
			Response string `json:"response"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return "", newProviderError(p.Name(), "failed to decode response", err)
		}
		return decoded.Response, nil
	}
	return "", newProviderError(p.Name(), "request failed after retries", lastErr)
}

func (p *OllamaProvider) prepareText(entry model.Entity, metadata map[string]interface{}) (string, error) {
	text := sourceText(entry, metadata)
	if text == "" {
		return "", newProviderError(p.Name(), "ENTRY entity does not contain textual content to analyze", nil)
	}
	if len(text) > p.maxChars {
		return text[:p.maxChars], nil
	}
	return text, nil
}

func (p *OllamaProvider) buildPrompt(entry model.Entity, text string) string {
	contextNotice := fmt.Sprintf("You may use up to %d tokens.", p.contextWindowTokens)
	if len(text) >= p.maxChars {
		contextNotice = fmt.Sprintf("The provided text has been truncated to %d tokens maximum.", p.contextWindowTokens)
	}

	return fmt.Sprintf(`You are the memory graph's extraction agent.
Your job is to perform high-quality named-entity and relationship extraction
from an unstructured journal entry and output ONLY JSON that conforms to the schema below.

ENTRY_ID: %s
ENTRY_LABELS: %v

%s

RAW_ENTRY_TEXT:
"""%s"""

Requirements:
1. Identify distinct entities for people, locations, organizations, objects, events, and key concepts.
   - Ignore pronouns, stop words, months, or vague references ("he", "she", "it", "my", "december", etc.).
2. Only the ENTRY node stores the full text; extracted entities must be concise (no long-form body).
3. Each entity JSON object MUST include:
   - "name": short canonical name. Do NOT include an "id" field.
   - "system_labels": choose from ["PERSON","LOCATION","ORGANIZATION","OBJECT","EVENT","CONCEPT"].
   - "labels": include "extracted" plus any helpful tags.
   - "summary": 1-2 sentence description referencing facts from the entry.
   - "metadata": include at least {"source_entry_id": "%s", "entity_type": "<type>"}.
4. Build "relations" that reflect the real relationships in the text.
   - Use uppercase snake_case relationType values like MENTIONED, WORKED_AT, MET_AT, LOCATED_IN.
   - When linking from the ENTRY to an extracted entity: set "source" to "%s" and "target" to that entity's exact "name".
   - When linking between extracted entities: set both "source" and "target" to the exact "name" strings of the entities you output.
5. Output JSON ONLY in the form:
   {"entities": [{...}], "relations": [{...}]}
   No explanations, code fences, or additional text.`,
		entry.ID, entry.SystemLabels, contextNotice, text, entry.ID, entry.ID)
}

// isTimeoutErr reports whether err represents a request timeout rather than
// some other transport failure - the only case the retry loop should retry.
func isTimeoutErr(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// cleanJSONResponse strips an optional code fence and extracts the
// outermost JSON object from a model's raw text response.
func cleanJSONResponse(raw string) (string, error) {
	cleaned := strings.TrimSpace(raw)
	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.Trim(cleaned, "`")
		if strings.HasPrefix(strings.ToLower(cleaned), "json") {
			cleaned = cleaned[4:]
		}
		cleaned = strings.TrimSpace(cleaned)
	}
	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start == -1 || end == -1 || end < start {
		return "", fmt.Errorf("no JSON object found in response")
	}
	return cleaned[start : end+1], nil
}
