package advice

import (
	"encoding/json"
	"errors"
	"strings"
	"unicode"

	apperrors "github.com/yanqian/daily-advisor/pkg/errors"
)

// fieldAliases lists the accepted external keys per internal field.
var fieldAliases = map[string][]string{
	"greeting":               {"greeting"},
	"condition_summary":      {"condition_summary", "conditionSummary"},
	"condition_detail":       {"condition_detail", "conditionDetail"},
	"daily_try":              {"daily_try", "dailyTry"},
	"closing_message":        {"closing_message", "closingMessage"},
	"environment_adaptation": {"environment_adaptation", "environmentAdaptation"},
	"action_suggestions":     {"action_suggestions", "actionSuggestions"},
	"title":                  {"title"},
	"summary":                {"summary"},
	"detail":                 {"detail"},
	"topic":                  {"topic"},
	"message":                {"message"},
}

// Validate turns raw provider output into a complete advisory or a classified
// error. The returned advice has a zero GeneratedAt.
func Validate(raw RawModelOutput) (GeneratedAdvice, error) {
	fields, err := decodeObject(raw)
	if err != nil {
		return GeneratedAdvice{}, err
	}

	greeting, err := requiredString(fields, "greeting", "greeting")
	if err != nil {
		return GeneratedAdvice{}, err
	}
	summary, err := requiredString(fields, "condition_summary", "condition_summary")
	if err != nil {
		return GeneratedAdvice{}, err
	}
	detail, err := requiredString(fields, "condition_detail", "condition_detail")
	if err != nil {
		return GeneratedAdvice{}, err
	}

	var tryFields map[string]json.RawMessage
	if rawTry, ok := lookup(fields, "daily_try"); ok {
		if err := json.Unmarshal(rawTry, &tryFields); err != nil {
			tryFields = nil
		}
	}
	tryTitle, err := requiredString(tryFields, "title", "daily_try.title")
	if err != nil {
		return GeneratedAdvice{}, err
	}
	tryDetail, err := requiredString(tryFields, "detail", "daily_try.detail")
	if err != nil {
		return GeneratedAdvice{}, err
	}
	closing, err := requiredString(fields, "closing_message", "closing_message")
	if err != nil {
		return GeneratedAdvice{}, err
	}

	topic := optionalString(tryFields, "topic")
	if topic == "" {
		topic = slugify(tryTitle)
	}

	var suggestions []string
	if rawList, ok := lookup(fields, "action_suggestions"); ok {
		if list, err := coerceStringArray(rawList); err == nil {
			suggestions = normalizeList(list)
		}
	}

	return GeneratedAdvice{
		Greeting:         greeting,
		ConditionSummary: summary,
		ConditionDetail:  detail,
		DailyTry: DailyTry{
			Title:   tryTitle,
			Summary: optionalString(tryFields, "summary"),
			Detail:  tryDetail,
			Topic:   topic,
		},
		ClosingMessage:        closing,
		EnvironmentAdaptation: optionalString(fields, "environment_adaptation"),
		ActionSuggestions:     suggestions,
	}, nil
}

// ValidateSupplement applies the same rules to a supplementary tip.
func ValidateSupplement(raw RawModelOutput) (Supplement, error) {
	fields, err := decodeObject(raw)
	if err != nil {
		return Supplement{}, err
	}
	title, err := requiredString(fields, "title", "title")
	if err != nil {
		return Supplement{}, err
	}
	message, err := requiredString(fields, "message", "message")
	if err != nil {
		return Supplement{}, err
	}
	return Supplement{Title: title, Message: message}, nil
}

func decodeObject(raw RawModelOutput) (map[string]json.RawMessage, error) {
	text, ok := firstTextBlock(raw.Blocks)
	if !ok {
		return nil, apperrors.Wrap(CodeMalformedResponse, "provider response has no text block", nil)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(stripCodeFence(text)), &fields); err != nil {
		return nil, apperrors.Wrap(CodeNotJSON, "provider response is not a JSON object", err)
	}
	return fields, nil
}

func firstTextBlock(blocks []ContentBlock) (string, bool) {
	for _, block := range blocks {
		if block.Type == "text" {
			return block.Text, true
		}
	}
	return "", false
}

func stripCodeFence(text string) string {
	sanitized := strings.TrimSpace(text)
	if !strings.HasPrefix(sanitized, "```") {
		return sanitized
	}
	sanitized = strings.TrimPrefix(sanitized, "```")
	if idx := strings.IndexByte(sanitized, '\n'); idx >= 0 {
		sanitized = sanitized[idx+1:]
	} else {
		sanitized = strings.TrimSpace(strings.TrimPrefix(sanitized, "json"))
	}
	sanitized = strings.TrimSpace(sanitized)
	sanitized = strings.TrimSuffix(sanitized, "```")
	return strings.TrimSpace(sanitized)
}

func lookup(fields map[string]json.RawMessage, field string) (json.RawMessage, bool) {
	for _, key := range fieldAliases[field] {
		if value, ok := fields[key]; ok && string(value) != "null" {
			return value, true
		}
	}
	return nil, false
}

func optionalString(fields map[string]json.RawMessage, field string) string {
	value, ok := lookup(fields, field)
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(value, &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

func requiredString(fields map[string]json.RawMessage, field, path string) (string, error) {
	if s := optionalString(fields, field); s != "" {
		return s, nil
	}
	return "", apperrors.Wrap(CodeIncompleteAdvice, "advice is missing "+path, &MissingFieldError{Field: path})
}

func coerceStringArray(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	switch raw[0] {
	case '"':
		var single string
		if err := json.Unmarshal(raw, &single); err != nil {
			return nil, err
		}
		if strings.TrimSpace(single) == "" {
			return nil, nil
		}
		return []string{single}, nil
	case '[':
		var many []string
		if err := json.Unmarshal(raw, &many); err != nil {
			return nil, err
		}
		return many, nil
	default:
		return nil, errors.New("unsupported suggestion list format")
	}
}

func normalizeList(items []string) []string {
	out := make([]string, 0, len(items))
	seen := make(map[string]struct{})
	for _, item := range items {
		clean := strings.TrimSpace(item)
		if clean == "" {
			continue
		}
		if _, ok := seen[clean]; ok {
			continue
		}
		seen[clean] = struct{}{}
		out = append(out, clean)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func slugify(title string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.TrimSuffix(b.String(), "-")
	if slug == "" {
		return "daily-try"
	}
	return slug
}
