package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"swellcast/internal/config"
	"swellcast/internal/reports"
	"swellcast/internal/types"
)

const narrationSystemPrompt = `You are a surf forecaster writing for a local break.
Given current ocean and weather conditions, respond with a JSON object only, no prose outside it:
{
  "narrative": "2-4 sentences describing the session quality in a friendly expert voice",
  "recommendations": {
    "board_type": "e.g. shortboard, funboard, longboard",
    "wetsuit_thickness": "e.g. 3/2mm",
    "skill_level": "beginner | intermediate | advanced",
    "spots": ["one or two named spots suited to these conditions"],
    "timing_advice": "when in the next few hours to paddle out"
  }
}`

// NarrationClient produces the report narrative by calling a
// chat-completions endpoint and parsing the model's JSON reply.
type NarrationClient struct {
	base   *BaseClient
	url    string
	apiKey types.SecretString
	model  string
}

// NewNarrationClient builds a narrator from config. The caller's http.Client
// should carry the narration timeout.
func NewNarrationClient(httpClient *http.Client, cfg config.NarrationConfig, opts ...BaseClientOption) *NarrationClient {
	return &NarrationClient{
		base:   NewBaseClient(httpClient, "narration", DefaultRetryPolicy(), "swellcast/1.0", opts...),
		url:    strings.TrimRight(cfg.BaseURL, "/") + "/v1/chat/completions",
		apiKey: cfg.APIKey,
		model:  cfg.Model,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// narrationPayload is the JSON shape we instruct the model to emit.
type narrationPayload struct {
	Narrative       string `json:"narrative"`
	Recommendations struct {
		BoardType        string   `json:"board_type"`
		WetsuitThickness string   `json:"wetsuit_thickness"`
		SkillLevel       string   `json:"skill_level"`
		Spots            []string `json:"spots"`
		TimingAdvice     string   `json:"timing_advice"`
	} `json:"recommendations"`
}

// Narrate implements reports.Narrator. Any failure, including a reply that
// does not parse as the expected JSON, surfaces as upstream_narration_failed.
func (c *NarrationClient) Narrate(ctx context.Context, snapshot types.ConditionSnapshot) (*reports.Narration, error) {
	reqBody := chatRequest{
		Model:       c.model,
		Temperature: 0.7,
		Messages: []chatMessage{
			{Role: "system", Content: narrationSystemPrompt},
			{Role: "user", Content: conditionsPrompt(snapshot)},
		},
	}
	reqBody.ResponseFormat.Type = "json_object"

	raw, err := json.Marshal(reqBody)
	if err != nil {
		return nil, narrationError("failed to encode narration request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(raw))
	if err != nil {
		return nil, narrationError("failed to build narration request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey.Unmask())

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, narrationError("narration call failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, narrationError(fmt.Sprintf("narration returned status %d: %s", resp.StatusCode, string(body)), nil)
	}

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return nil, narrationError("failed to decode narration response", err)
	}
	if len(chat.Choices) == 0 {
		return nil, narrationError("narration response contained no choices", nil)
	}

	return parseNarration(chat.Choices[0].Message.Content)
}

// parseNarration validates the model's content as the expected JSON payload.
func parseNarration(content string) (*reports.Narration, error) {
	// Models occasionally wrap JSON in a code fence despite instructions.
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var payload narrationPayload
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return nil, narrationError("narration reply was not valid JSON", err)
	}
	if payload.Narrative == "" {
		return nil, narrationError("narration reply missing narrative", nil)
	}

	skill := types.SkillLevel(payload.Recommendations.SkillLevel)
	if !skill.Valid() {
		skill = types.SkillIntermediate
	}

	return &reports.Narration{
		Narrative: payload.Narrative,
		Recommendations: types.RecommendationSet{
			BoardType:        payload.Recommendations.BoardType,
			WetsuitThickness: payload.Recommendations.WetsuitThickness,
			SkillLevel:       skill,
			Spots:            payload.Recommendations.Spots,
			TimingAdvice:     payload.Recommendations.TimingAdvice,
		},
	}, nil
}

// conditionsPrompt renders the snapshot as the user message.
func conditionsPrompt(c types.ConditionSnapshot) string {
	return fmt.Sprintf(
		"Current conditions: wave height %.1fm, period %.0fs, swell from %.0f°, wind %.0fkts from %.0f°, tide %s at %.1fm, water %.0f°C, air %.0f°C, weather %s, surfability score %d/100.",
		c.WaveHeightM, c.WavePeriodS, c.SwellDirection,
		c.WindSpeedKts, c.WindDirection,
		c.TideState, c.TideHeightM,
		c.WaterTempC, c.AirTempC,
		c.Weather, c.Score,
	)
}

// narrationError wraps an upstream failure with the narration error code.
func narrationError(msg string, err error) *types.AppError {
	return types.NewAppError(types.ErrCodeUpstreamNarration, msg, err)
}
