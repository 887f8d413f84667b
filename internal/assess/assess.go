// Package assess implements component G's assessment-mode LLM caller: a
// second opinion on a candidate-job fit, produced by Claude instead of
// GPT-4o-mini, used only by the v5 role+geo pipeline's deep-evaluation
// step. Grounded on
// _examples/nikogura-resume-tailor/pkg/llm/client.go's sendRequest
// (marshal -> POST api.anthropic.com/v1/messages with X-Api-Key and
// Anthropic-Version headers -> decode content[0].text -> strip markdown
// fences -> JSON-unmarshal), adapted to this module's gate->call->parse
// pipeline shape and error idiom.
package assess

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/finbuch/matchcore/internal/model"
)

const (
	endpoint       = "https://api.anthropic.com/v1/messages"
	defaultModel   = "claude-3-5-haiku-20241022"
	apiVersion     = "2023-06-01"
	perCallTimeout = 30 * time.Second
	maxTokens      = 1024
)

// Assessment is the structured fit judgment Claude returns.
type Assessment struct {
	Score          float64              `json:"score"` // 0-1
	Recommendation model.Recommendation `json:"recommendation"`
	Explanation    string               `json:"explanation"`
	Strengths      []string             `json:"strengths"`
	Weaknesses     []string             `json:"weaknesses"`
}

// Client calls the Anthropic Messages API over plain net/http.
type Client struct {
	apiKey     string
	model      string
	endpoint   string
	httpClient *http.Client
}

// NewClient builds a Client. model == "" defaults to defaultModel.
func NewClient(apiKey, model string) *Client {
	if model == "" {
		model = defaultModel
	}
	return &Client{
		apiKey:   apiKey,
		model:    model,
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: perCallTimeout + 5*time.Second,
		},
	}
}

type messageRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messageResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

// Assess sends one candidate-job pair to Claude and returns the parsed
// assessment. Assessment text that does not parse degrades to a
// conservative zero-score Assessment via ParseAssessment; a non-200
// status, an undecodable response body, or a response with no content
// block is returned as an error.
func (c *Client) Assess(ctx context.Context, candidate model.Candidate, job model.Job) (Assessment, error) {
	callCtx, cancel := context.WithTimeout(ctx, perCallTimeout)
	defer cancel()

	prompt := formatPrompt(candidate, job)

	reqBody, err := json.Marshal(messageRequest{
		Model:     c.model,
		MaxTokens: maxTokens,
		Messages:  []message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return Assessment{}, errors.Wrap(err, "assess: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return Assessment{}, errors.Wrap(err, "assess: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Api-Key", c.apiKey)
	httpReq.Header.Set("Anthropic-Version", apiVersion)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Assessment{}, errors.Wrap(err, "assess: request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Assessment{}, errors.Wrap(err, "assess: read response body")
	}
	if resp.StatusCode != http.StatusOK {
		return Assessment{}, errors.Errorf("assess: status %d: %s", resp.StatusCode, string(respBody))
	}

	var claudeResp messageResponse
	if err := json.Unmarshal(respBody, &claudeResp); err != nil {
		return Assessment{}, errors.Wrapf(err, "assess: parse response: %s", string(respBody))
	}
	if len(claudeResp.Content) == 0 {
		return Assessment{}, errors.New("assess: no content in response")
	}

	return ParseAssessment(claudeResp.Content[0].Text), nil
}

// ParseAssessment strips markdown code fences and prefatory commentary
// Claude sometimes adds before a JSON object, then decodes it. Any
// failure degrades to a conservative zero-score Assessment.
func ParseAssessment(text string) Assessment {
	cleaned := stripMarkdownCodeFences(text)

	var a Assessment
	if err := json.Unmarshal([]byte(cleaned), &a); err != nil {
		return Assessment{Recommendation: model.RecommendNichtPassend, Explanation: "unparseable model response"}
	}
	if a.Score < 0 || a.Score > 1 {
		return Assessment{Recommendation: model.RecommendNichtPassend, Explanation: "score out of range"}
	}
	return a
}

// stripMarkdownCodeFences removes a leading ```json fence and any
// prefatory commentary before the first '{' or code fence.
func stripMarkdownCodeFences(text string) string {
	cleaned := text

	codeBlockStart := strings.Index(cleaned, "```json")
	jsonStart := strings.IndexByte(cleaned, '{')

	switch {
	case codeBlockStart >= 0:
		cleaned = cleaned[codeBlockStart:]
	case jsonStart > 0:
		cleaned = cleaned[jsonStart:]
	}

	if strings.HasPrefix(cleaned, "```json") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimPrefix(cleaned, "\n")
		cleaned = strings.TrimSuffix(strings.TrimRight(cleaned, "\n\r \t"), "```")
	}
	return cleaned
}
