package labeler

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var fencePattern = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

type labelPayload struct {
	FogScore           *float64 `json:"fog_score"`
	FogLevel           string   `json:"fog_level"`
	Confidence         *float64 `json:"confidence"`
	Reasoning          string   `json:"reasoning"`
	VisibilityEstimate string   `json:"visibility_estimate"`
	WeatherConditions  []string `json:"weather_conditions"`
}

// ExtractJSON locates the JSON object in model output, tolerating a markdown
// code fence around it.
func ExtractJSON(text string) (json.RawMessage, error) {
	if m := fencePattern.FindStringSubmatch(text); m != nil {
		return json.RawMessage(m[1]), nil
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in model output")
	}
	return json.RawMessage(text[start : end+1]), nil
}

// ParseResponse extracts and validates the fog assessment from raw model
// output. The validated fields are returned alongside the raw payload so the
// full structured response can be persisted for forward compatibility.
func ParseResponse(text string) (labelPayload, json.RawMessage, error) {
	raw, err := ExtractJSON(text)
	if err != nil {
		return labelPayload{}, nil, err
	}
	var payload labelPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return labelPayload{}, nil, fmt.Errorf("parse label JSON: %w", err)
	}
	if err := payload.validate(); err != nil {
		return labelPayload{}, nil, err
	}
	return payload, raw, nil
}

func (p labelPayload) validate() error {
	if p.FogScore == nil {
		return fmt.Errorf("label JSON missing fog_score")
	}
	if *p.FogScore < 0 || *p.FogScore > 100 {
		return fmt.Errorf("fog_score %v out of range [0,100]", *p.FogScore)
	}
	if strings.TrimSpace(p.FogLevel) == "" {
		return fmt.Errorf("label JSON missing fog_level")
	}
	if p.Confidence == nil {
		return fmt.Errorf("label JSON missing confidence")
	}
	if *p.Confidence < 0 || *p.Confidence > 1 {
		return fmt.Errorf("confidence %v out of range [0,1]", *p.Confidence)
	}
	return nil
}
