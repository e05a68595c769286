package analysis

import (
	"encoding/json"
	"strings"

	"github.com/trueframe/trueframe-analysis-service/internal/domain/entity"
)

const (
	// fallbackConfidence signals reduced certainty when the model's
	// reply carried no usable structured data.
	fallbackConfidence = 70

	fallbackIssue = "Analysis completed but structured data unavailable"
)

// Interpret turns the model's raw reply into a Verdict. It is total:
// any input, including the empty string, yields a well-formed Verdict
// and never an error. Structured JSON is preferred; everything else
// goes through the keyword heuristic.
func Interpret(raw string) entity.Verdict {
	if v, ok := parseStructured(raw); ok {
		return v
	}
	return heuristicVerdict(raw)
}

// parseStructured extracts the first "{" through the last "}" and
// validates the result against the Verdict shape. A reply that parses
// but is missing isAuthentic or confidence counts as unstructured.
func parseStructured(raw string) (entity.Verdict, bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return entity.Verdict{}, false
	}

	var payload struct {
		IsAuthentic *bool    `json:"isAuthentic"`
		Confidence  *float64 `json:"confidence"`
		Issues      []string `json:"issues"`
		Details     string   `json:"details"`
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), &payload); err != nil {
		return entity.Verdict{}, false
	}
	if payload.IsAuthentic == nil || payload.Confidence == nil {
		return entity.Verdict{}, false
	}

	issues := payload.Issues
	if issues == nil {
		issues = []string{}
	}

	return entity.Verdict{
		IsAuthentic: *payload.IsAuthentic,
		Confidence:  clampConfidence(*payload.Confidence),
		Issues:      issues,
		Details:     payload.Details,
	}, true
}

// heuristicVerdict classifies a free-text reply. "authentic" or
// "genuine" wins over the absence of "deepfake", in that precedence.
func heuristicVerdict(raw string) entity.Verdict {
	lower := strings.ToLower(raw)
	authentic := strings.Contains(lower, "authentic") ||
		strings.Contains(lower, "genuine") ||
		!strings.Contains(lower, "deepfake")

	issues := []string{}
	if !authentic {
		issues = []string{fallbackIssue}
	}

	return entity.Verdict{
		IsAuthentic: authentic,
		Confidence:  fallbackConfidence,
		Issues:      issues,
		Details:     raw,
	}
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return c
}
