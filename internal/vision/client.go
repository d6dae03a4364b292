package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"inventaire-ai/config"
	"inventaire-ai/internal/models"
	"inventaire-ai/internal/util"

	"go.uber.org/zap"
)

// Client calls the Gemini generateContent API. It implements Analyzer.
type Client struct {
	cfg        config.AnalysisConfig
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(cfg config.AnalysisConfig) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
		logger:     util.GetLogger(),
	}
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Analyze sends the image and prompt to the model and parses the detected
// objects from its reply.
func (c *Client) Analyze(ctx context.Context, req Request) ([]models.ObjectResult, error) {
	ctx, span := util.StartSpan(ctx, "vision.Analyze")
	defer span.End()

	timer := time.Now()
	defer func() {
		util.AnalysisLatency.Observe(time.Since(timer).Seconds())
	}()

	body := generateRequest{Contents: []content{{Parts: []part{
		{Text: c.buildPrompt(req)},
		{InlineData: &inlineData{
			MimeType: "image/jpeg",
			Data:     base64.StdEncoding.EncodeToString(req.Image),
		}},
	}}}}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal analysis request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		strings.TrimRight(c.cfg.Endpoint, "/"), c.cfg.Model, c.cfg.APIKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build analysis request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		util.AnalysisErrorsTotal.WithLabelValues("transport").Inc()
		return nil, fmt.Errorf("analysis call failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		util.AnalysisErrorsTotal.WithLabelValues("transport").Inc()
		return nil, fmt.Errorf("failed to read analysis response: %w", err)
	}

	var decoded generateResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		util.AnalysisErrorsTotal.WithLabelValues("decode").Inc()
		return nil, fmt.Errorf("failed to decode analysis response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		util.AnalysisErrorsTotal.WithLabelValues("status").Inc()
		msg := strings.TrimSpace(string(raw))
		if decoded.Error != nil {
			msg = decoded.Error.Message
		}
		return nil, fmt.Errorf("analysis call returned %d: %s", resp.StatusCode, msg)
	}
	if len(decoded.Candidates) == 0 || len(decoded.Candidates[0].Content.Parts) == 0 {
		util.AnalysisErrorsTotal.WithLabelValues("empty").Inc()
		return nil, fmt.Errorf("analysis response contained no candidates")
	}

	text := decoded.Candidates[0].Content.Parts[0].Text
	results, err := ParseResults(text)
	if err != nil {
		util.AnalysisErrorsTotal.WithLabelValues("parse").Inc()
		c.logger.Warn("Unparsable model reply", zap.String("reply", truncate(text, 300)))
		return nil, err
	}

	util.ImagesAnalyzedTotal.Inc()
	return results, nil
}

func (c *Client) buildPrompt(req Request) string {
	var b strings.Builder
	if req.Multi {
		b.WriteString("Identify every distinct physical object in this photo.\n")
	} else {
		b.WriteString("Identify the single most prominent physical object in this photo.\n")
	}
	b.WriteString("Reply with JSON only: an array of objects with the fields ")
	b.WriteString(`"name", "category_id", "quantity", "condition" ("new" or "used"), `)
	b.WriteString(`"unit_price" (estimated second-hand, EUR), "new_price" (estimated new, EUR), `)
	b.WriteString(`"confidence" (0-100) and "bounding_box" ([ymin, xmin, ymax, xmax] scaled 0-1000).` + "\n")

	if req.Categories != "" {
		b.WriteString("\n" + req.Categories)
	}
	if req.Context != "" {
		b.WriteString("\nContext about this lot: " + req.Context + "\n")
	}
	if req.Target != "" {
		fmt.Fprintf(&b, "\nThe photo is expected to show: %s. Confirm or correct.\n", req.Target)
	}
	if req.Hint != "" {
		fmt.Fprintf(&b, "\nOperator note: %s\n", req.Hint)
	}
	if req.Previous != nil {
		prev, err := json.Marshal(map[string]any{
			"name":       req.Previous.Name,
			"quantity":   req.Previous.Quantity,
			"condition":  req.Previous.Condition,
			"unit_price": req.Previous.UnitPrice,
			"confidence": req.Previous.Confidence,
		})
		if err == nil {
			fmt.Fprintf(&b, "\nA previous pass produced %s. Refine it, do not start over.\n", prev)
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
