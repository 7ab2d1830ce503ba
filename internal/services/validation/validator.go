// Package validation turns raw chat or web text into a sanitized submission.
package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ternarybob/playforge/internal/models"
)

// ErrRejected is the parent of every validation rejection
var ErrRejected = errors.New("submission rejected")

var (
	ErrEmpty       = fmt.Errorf("%w: empty text", ErrRejected)
	ErrNoCommand   = fmt.Errorf("%w: no command prefix", ErrRejected)
	ErrEmptyPrompt = fmt.Errorf("%w: empty prompt after command", ErrRejected)
	ErrBlocked     = fmt.Errorf("%w: sensitive request", ErrRejected)
	ErrInvalid     = fmt.Errorf("%w: nothing left after escaping", ErrRejected)
)

// BlockedMessage is shown to a submitter whose prompt was blocked
const BlockedMessage = "Requests for sensitive information (IP, location, fingerprint) are not allowed for security reasons."

// command maps a chat prefix to a mode. Prefixes are checked in order.
type command struct {
	prefix string
	mode   models.Mode
}

var commands = []command{
	{prefix: "!create", mode: models.ModeCreate},
	{prefix: "!pc", mode: models.ModePC},
	{prefix: "!mobile", mode: models.ModeMobile},
}

var sensitiveKeywords = []string{
	"ip address", "ipaddress",
	"location", "geolocation", "geo location",
	"fingerprint", "browser fingerprint", "device fingerprint",
	"navigator.geolocation", "getcurrentposition", "watchposition",
	"user agent", "useragent",
	"ipify", "ipapi", "ip-api", "ipinfo", "ipgeolocation",
	"show ip", "ip show", "display ip", "ip display",
}

// html.EscapeString leaves '/' alone and emits &#39; for quotes; the UI expects this exact set.
var escaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#x27;",
	"/", "&#x2F;",
)

// Validate parses the command prefix, filters sensitive requests and escapes the prompt.
// Every failure wraps ErrRejected; use IsBlocked to single out the one that must be reported.
func Validate(raw string) (models.Submission, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return models.Submission{}, ErrEmpty
	}

	mode, rest, ok := parseCommand(text)
	if !ok {
		return models.Submission{}, ErrNoCommand
	}

	rest = strings.TrimSpace(rest)
	if rest == "" {
		return models.Submission{}, ErrEmptyPrompt
	}

	if ContainsSensitive(rest) {
		return models.Submission{}, ErrBlocked
	}

	prompt := Escape(rest)
	if prompt == "" {
		return models.Submission{}, ErrInvalid
	}

	return models.Submission{Mode: mode, Prompt: prompt}, nil
}

// IsBlocked reports whether err is the sensitive-content rejection
func IsBlocked(err error) bool {
	return errors.Is(err, ErrBlocked)
}

// parseCommand matches a prefix case-insensitively and strips its fixed length
func parseCommand(text string) (models.Mode, string, bool) {
	for _, c := range commands {
		if len(text) >= len(c.prefix) && strings.EqualFold(text[:len(c.prefix)], c.prefix) {
			return c.mode, text[len(c.prefix):], true
		}
	}
	return "", "", false
}

// ContainsSensitive reports whether text mentions any privacy-sensitive keyword
func ContainsSensitive(text string) bool {
	lower := strings.ToLower(text)
	for _, keyword := range sensitiveKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

// Escape substitutes HTML-significant characters and trims the result
func Escape(text string) string {
	return strings.TrimSpace(escaper.Replace(text))
}
