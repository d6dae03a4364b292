package vision

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"inventaire-ai/config"
	"inventaire-ai/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.AnalysisConfig{
		APIKey:         "test-key",
		Model:          "test-model",
		Endpoint:       srv.URL,
		TimeoutSeconds: 5,
	})
}

func modelReply(text string) []byte {
	raw, _ := json.Marshal(map[string]any{
		"candidates": []map[string]any{{
			"content": map[string]any{
				"parts": []map[string]string{{"text": text}},
			},
		}},
	})
	return raw
}

func TestAnalyzeRoundTrip(t *testing.T) {
	var gotPath string
	var gotBody generateRequest

	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write(modelReply("```json\n[{\"name\":\"kettle\",\"confidence\":95}]\n```"))
	})

	results, err := c.Analyze(context.Background(), Request{
		Image:  []byte("jpeg-bytes"),
		Target: "kettle",
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "kettle", results[0].NameOr(""))
	assert.Equal(t, 95, results[0].ConfidenceOr(0))

	assert.Equal(t, "/models/test-model:generateContent", gotPath)
	require.Len(t, gotBody.Contents, 1)
	require.Len(t, gotBody.Contents[0].Parts, 2)
	assert.Contains(t, gotBody.Contents[0].Parts[0].Text, "kettle")
	assert.Equal(t, "image/jpeg", gotBody.Contents[0].Parts[1].InlineData.MimeType)
}

func TestAnalyzePromptCarriesContext(t *testing.T) {
	var prompt string
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body generateRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		prompt = body.Contents[0].Parts[0].Text
		w.Write(modelReply(`[{"name":"x"}]`))
	})

	_, err := c.Analyze(context.Background(), Request{
		Image:      []byte("jpeg"),
		Hint:       "only the blue one",
		Categories: "Known categories (id: name):\n- T01: Tools\n",
		Context:    "garage clearance lot",
		Multi:      true,
		Previous:   &models.Record{Name: "unknown tool", Confidence: 40},
	})
	require.NoError(t, err)

	assert.Contains(t, prompt, "every distinct physical object")
	assert.Contains(t, prompt, "only the blue one")
	assert.Contains(t, prompt, "T01: Tools")
	assert.Contains(t, prompt, "garage clearance lot")
	assert.Contains(t, prompt, "unknown tool")
}

func TestAnalyzeAPIError(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"quota exceeded"}}`))
	})

	_, err := c.Analyze(context.Background(), Request{Image: []byte("jpeg")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestAnalyzeEmptyCandidates(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[]}`))
	})

	_, err := c.Analyze(context.Background(), Request{Image: []byte("jpeg")})
	assert.Error(t, err)
}

func TestAnalyzeUnparsableReply(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(modelReply("sorry, I cannot help with that"))
	})

	_, err := c.Analyze(context.Background(), Request{Image: []byte("jpeg")})
	assert.Error(t, err)
}
