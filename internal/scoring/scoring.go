package scoring

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/emrekara/gradescan/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

// QuestionScore is one (question number, score) pair read off a scan.
type QuestionScore struct {
	QuestionNumber int     `json:"question"`
	Score          float64 `json:"score"`
}

// Result holds everything extracted from a single scanned document.
type Result struct {
	StudentNumber string          `json:"student_number"`
	Scores        []QuestionScore `json:"scores"`
}

// Adapter converts a scanned exam document into per-question score tuples.
// Implementations may be slow (seconds per call) and may fail per document.
type Adapter interface {
	Score(ctx context.Context, document []byte) (*Result, error)
}

// VisionClient scores scans through an OpenAI-compatible vision model.
type VisionClient struct {
	api   *openai.Client
	model string
}

// New creates a vision scoring client from the injected configuration.
func New(cfg model.ScoringConfig) *VisionClient {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	return &VisionClient{
		api:   openai.NewClientWithConfig(config),
		model: cfg.Model,
	}
}

// Ping verifies the scoring endpoint is reachable.
func (c *VisionClient) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("scoring endpoint unreachable: %w", err)
	}
	return nil
}

// Score sends the document as an image part and parses the model's JSON
// extraction into a Result.
func (c *VisionClient) Score(ctx context.Context, document []byte) (*Result, error) {
	mime := http.DetectContentType(document)
	dataURL := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(document)

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: buildExtractionPrompt()},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: "Extract the student number and per-question scores from this exam sheet."},
					{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
						URL:    dataURL,
						Detail: openai.ImageURLDetailHigh,
					}},
				},
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("scoring API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("scoring model returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("scoring response", "raw", raw)

	return parseResult(raw)
}

func parseResult(raw string) (*Result, error) {
	var result Result
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("parse scoring response: %w (raw: %s)", err, raw)
	}
	if result.StudentNumber == "" {
		return nil, fmt.Errorf("scoring response has no student number (raw: %s)", raw)
	}
	if len(result.Scores) == 0 {
		return nil, fmt.Errorf("scoring response has no scores (raw: %s)", raw)
	}
	for _, sc := range result.Scores {
		if sc.Score < 0 {
			return nil, fmt.Errorf("negative score %v for question %d", sc.Score, sc.QuestionNumber)
		}
	}
	return &result, nil
}
