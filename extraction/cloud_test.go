package extraction

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/briangormanly/momento/config"
	"github.com/briangormanly/momento/model"
)

func TestOpenAIProviderFallsBackToLocalWithoutAPIKey(t *testing.T) {
	provider := NewOpenAIProvider(config.CloudProviderConfig{Model: "gpt-4o-mini", BaseURL: "http://unused"}, discardLogger())

	entry, err := model.NewEntity(model.Entity{
		SystemLabels: []model.SystemLabel{model.SystemLabelEntry},
		Content:      &model.ContentBlock{Format: model.ContentFormatText, Body: "Brian visited Twilight Florist."},
	})
	require.NoError(t, err)

	result, err := provider.Extract(context.Background(), *entry, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, result.Entities)
	for _, e := range result.Entities {
		assert.Equal(t, "local-provider", e.Metadata["generated_by"])
	}
}

func TestOpenAIProviderParsesSuccessfulResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		content := `{"entities":[{"name":"Brian","system_labels":["PERSON"],"labels":["extracted"],"metadata":{"source_entry_id":"e1"}}],"relations":[]}`
		resp := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": content}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	provider := NewOpenAIProvider(config.CloudProviderConfig{Model: "gpt-4o-mini", BaseURL: server.URL, APIKey: "test-key"}, discardLogger())

	entry, err := model.NewEntity(model.Entity{
		SystemLabels: []model.SystemLabel{model.SystemLabelEntry},
		Content:      &model.ContentBlock{Format: model.ContentFormatText, Body: "Brian visited."},
	})
	require.NoError(t, err)

	result, err := provider.Extract(context.Background(), *entry, nil)
	require.NoError(t, err)
	require.Len(t, result.Entities, 1)
	assert.Equal(t, "Brian", result.Entities[0].Name)
}

func TestOpenAIProviderFallsBackOnServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	provider := NewOpenAIProvider(config.CloudProviderConfig{Model: "gpt-4o-mini", BaseURL: server.URL, APIKey: "test-key"}, discardLogger())

	entry, err := model.NewEntity(model.Entity{
		SystemLabels: []model.SystemLabel{model.SystemLabelEntry},
		Content:      &model.ContentBlock{Format: model.ContentFormatText, Body: "Brian visited Twilight Florist."},
	})
	require.NoError(t, err)

	result, err := provider.Extract(context.Background(), *entry, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, result.Entities)
}

func TestAnthropicProviderFallsBackToLocalWithoutAPIKey(t *testing.T) {
	provider := NewAnthropicProvider(config.CloudProviderConfig{Model: "claude-3-haiku-20240307", BaseURL: "http://unused"}, discardLogger())

	entry, err := model.NewEntity(model.Entity{
		SystemLabels: []model.SystemLabel{model.SystemLabelEntry},
		Content:      &model.ContentBlock{Format: model.ContentFormatText, Body: "Eric visited Poughkeepsie."},
	})
	require.NoError(t, err)

	result, err := provider.Extract(context.Background(), *entry, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, result.Entities)
}
