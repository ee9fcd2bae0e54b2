package advice

import (
	_ "embed"
	"encoding/json"
	"strings"
	"time"
)

//go:embed locales.json
var localesJSON []byte

const fallbackLocale = "en"

type localeStrings struct {
	Language    string                      `json:"language"`
	Unknown     string                      `json:"unknown"`
	Advice      GeneratedAdvice             `json:"advice"`
	Supplements map[DaySlot]supplementEntry `json:"supplements"`
}

type supplementEntry struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

// builtinEnglish backs the embedded table so the static path has no failure mode.
var builtinEnglish = localeStrings{
	Language: "English",
	Unknown:  "unknown",
	Advice: GeneratedAdvice{
		Greeting:         "Good day!",
		ConditionSummary: "A personalized reading is not available right now.",
		ConditionDetail:  "Take today at a comfortable pace and listen to how your body feels.",
		DailyTry: DailyTry{
			Title:  "Take a ten minute walk",
			Detail: "Walk for ten minutes at an easy pace.",
			Topic:  "light-walk",
		},
		ClosingMessage: "See you tomorrow.",
	},
	Supplements: map[DaySlot]supplementEntry{
		SlotAfternoon: {Title: "Afternoon reset", Message: "Stand up, stretch and drink some water."},
		SlotEvening:   {Title: "Wind down", Message: "Put screens away before bed."},
	},
}

var locales = loadLocales(localesJSON)

func loadLocales(data []byte) map[string]localeStrings {
	table := map[string]localeStrings{}
	if err := json.Unmarshal(data, &table); err != nil {
		table = map[string]localeStrings{}
	}
	for tag, strs := range table {
		if !isCompleteAdvice(strs.Advice) || strs.Unknown == "" {
			delete(table, tag)
		}
	}
	if _, ok := table[fallbackLocale]; !ok {
		table[fallbackLocale] = builtinEnglish
	}
	return table
}

func isCompleteAdvice(a GeneratedAdvice) bool {
	for _, value := range []string{a.Greeting, a.ConditionSummary, a.ConditionDetail, a.DailyTry.Title, a.DailyTry.Detail, a.ClosingMessage} {
		if strings.TrimSpace(value) == "" {
			return false
		}
	}
	return true
}

// ResolveLocale maps a BCP 47 tag to a supported locale by primary subtag.
func ResolveLocale(tag string) string {
	primary := strings.ToLower(strings.TrimSpace(tag))
	if idx := strings.IndexAny(primary, "-_"); idx >= 0 {
		primary = primary[:idx]
	}
	if _, ok := locales[primary]; ok {
		return primary
	}
	return fallbackLocale
}

func localeFor(tag string) localeStrings {
	return locales[ResolveLocale(tag)]
}

// UnknownPlaceholder is the text printed for missing values in locale.
func UnknownPlaceholder(locale string) string {
	return localeFor(locale).Unknown
}

// StaticAdvice returns the locale's default advisory stamped with now.
func StaticAdvice(locale string, now time.Time) GeneratedAdvice {
	advice := localeFor(locale).Advice
	advice.ActionSuggestions = append([]string(nil), advice.ActionSuggestions...)
	advice.GeneratedAt = now
	return advice
}

// StaticSupplement returns the locale's canned tip for slot.
func StaticSupplement(locale string, slot DaySlot) Supplement {
	entry, ok := localeFor(locale).Supplements[slot]
	if !ok || entry.Title == "" {
		entry = builtinEnglish.Supplements[slot]
	}
	if entry.Title == "" {
		entry = builtinEnglish.Supplements[SlotEvening]
	}
	return Supplement{Title: entry.Title, Message: entry.Message}
}
