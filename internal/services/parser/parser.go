// Package parser recovers a structured generation result from raw model output.
package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ternarybob/playforge/internal/models"
)

// ParseError is returned when both the direct and the recovery decode fail.
// Err is the error from the first, direct attempt.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse model response: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Outcome describes how a response was parsed, for narration
type Outcome struct {
	Bytes     int  // length of the raw response
	Recovered bool // the recovery pass was needed
}

var (
	fenceJSON      = regexp.MustCompile("```json\\n?")
	fencePlain     = regexp.MustCompile("```\\n?")
	trailingBrace  = regexp.MustCompile(`,\s*}`)
	trailingSquare = regexp.MustCompile(`,\s*]`)
)

// Parse extracts {html, css, js} from raw model output. Fenced code markers and
// any prose around the outermost JSON object are discarded. If the object does
// not decode, one recovery pass strips control bytes and trailing commas before
// a second and final attempt.
func Parse(raw string) (models.GenerationResult, Outcome, error) {
	outcome := Outcome{Bytes: len(raw)}

	text := strings.TrimSpace(raw)
	if strings.Contains(text, "```") {
		text = fencePlain.ReplaceAllString(fenceJSON.ReplaceAllString(text, ""), "")
		text = strings.TrimSpace(text)
	}
	text = sliceObject(text)

	result, err := decode(text)
	if err == nil {
		return result, outcome, nil
	}

	outcome.Recovered = true
	repaired := sliceObject(repair(text))
	result, retryErr := decode(repaired)
	if retryErr != nil {
		return models.GenerationResult{}, outcome, &ParseError{Err: err}
	}

	return result, outcome, nil
}

// sliceObject narrows text to the span between the first '{' and the last '}'
func sliceObject(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start != -1 && end != -1 && end > start {
		return text[start : end+1]
	}
	return text
}

// repair drops bytes outside printable ASCII (keeping \n, \r and \t) and
// removes commas that directly precede a closing brace or bracket.
func repair(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(text); i++ {
		c := text[i]
		if (c >= 0x20 && c <= 0x7E) || c == '\n' || c == '\r' || c == '\t' {
			b.WriteByte(c)
		}
	}

	cleaned := trailingBrace.ReplaceAllString(b.String(), "}")
	return trailingSquare.ReplaceAllString(cleaned, "]")
}

var errNotObject = errors.New("response is not a JSON object")

func decode(text string) (models.GenerationResult, error) {
	var fields map[string]interface{}
	if err := json.Unmarshal([]byte(text), &fields); err != nil {
		return models.GenerationResult{}, err
	}
	if fields == nil {
		return models.GenerationResult{}, errNotObject
	}

	return models.GenerationResult{
		HTML: stringField(fields, "html"),
		CSS:  stringField(fields, "css"),
		JS:   stringField(fields, "js"),
	}, nil
}

func stringField(fields map[string]interface{}, key string) string {
	if v, ok := fields[key].(string); ok {
		return v
	}
	return ""
}
