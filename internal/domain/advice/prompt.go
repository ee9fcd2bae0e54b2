package advice

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const instructionsPrompt = `You are a friendly personal health coach writing one short daily advisory.
Use ONLY the data provided. Never diagnose, never mention medication, and never invent measurements.
When a value is marked unknown, do not speculate about it.
Prefer a daily try whose topic differs from the recent topics listed.
Write every text field in the requested language.
Respond ONLY with valid JSON using this shape:
{"greeting":string,"condition_summary":string,"condition_detail":string,"daily_try":{"title":string,"summary":string,"detail":string,"topic":string},"closing_message":string,"environment_adaptation":string,"action_suggestions":string[]}
environment_adaptation and action_suggestions are optional. topic is a short kebab-case label.`

const supplementInstructionsPrompt = `You are a friendly personal health coach writing one short supplementary tip for later in the day.
Use ONLY the data provided and keep it under three sentences. Write in the requested language.
Respond ONLY with valid JSON: {"title":string,"message":string}`

// SupplementContext carries the extra input for a supplementary tip.
type SupplementContext struct {
	Slot          DaySlot
	DailyTryTitle string
}

// PromptBuilder assembles layered prompts. It holds no state.
type PromptBuilder struct{}

// NewPromptBuilder returns a PromptBuilder.
func NewPromptBuilder() PromptBuilder {
	return PromptBuilder{}
}

// Build produces the three layer advisory prompt for rc.
func (PromptBuilder) Build(rc RequestContext) LayeredPrompt {
	name, examples := exampleSetFor(rc.Profile)
	return LayeredPrompt{
		Instructions: PromptLayer{Name: "instructions", Text: instructionsPrompt, Cacheable: true},
		Examples:     PromptLayer{Name: "examples:" + name, Text: examples, Cacheable: true},
		UserData:     PromptLayer{Name: "user_data", Text: renderUserData(rc)},
	}
}

// BuildSupplement produces the prompt for a supplementary tip. It has no
// example layer.
func (PromptBuilder) BuildSupplement(rc RequestContext, sc SupplementContext) LayeredPrompt {
	unknown := UnknownPlaceholder(rc.Locale)
	var b strings.Builder
	b.WriteString(renderUserData(rc))
	b.WriteString("\n[supplement]\n")
	writeField(&b, "slot", string(sc.Slot), unknown)
	writeField(&b, "today_daily_try", sc.DailyTryTitle, unknown)
	return LayeredPrompt{
		Instructions: PromptLayer{Name: "supplement_instructions", Text: supplementInstructionsPrompt, Cacheable: true},
		UserData:     PromptLayer{Name: "user_data", Text: b.String()},
	}
}

func renderUserData(rc RequestContext) string {
	unknown := UnknownPlaceholder(rc.Locale)
	var b strings.Builder

	b.WriteString("[meta]\n")
	writeField(&b, "date", rc.Date, unknown)
	writeField(&b, "weekday", rc.Weekday.String(), unknown)
	writeField(&b, "is_weekend", strconv.FormatBool(rc.IsWeekend), unknown)
	writeField(&b, "is_monday", strconv.FormatBool(rc.IsMonday), unknown)
	writeField(&b, "is_friday", strconv.FormatBool(rc.IsFriday), unknown)
	writeField(&b, "slot", string(rc.Slot), unknown)
	writeField(&b, "locale", ResolveLocale(rc.Locale), unknown)
	writeField(&b, "language", localeFor(rc.Locale).Language, unknown)

	p := rc.Profile
	b.WriteString("\n[profile]\n")
	writeField(&b, "nickname", p.Nickname, unknown)
	writeField(&b, "age_years", formatInt(p.AgeYears, unknown), unknown)
	writeField(&b, "gender", p.Gender, unknown)
	writeField(&b, "height_cm", formatFloat(p.HeightCm, unknown), unknown)
	writeField(&b, "weight_kg", formatFloat(p.WeightKg, unknown), unknown)
	writeField(&b, "interests", strings.Join(p.Interests, ", "), unknown)
	writeField(&b, "goal", p.Goal, unknown)

	h := rc.Health
	b.WriteString("\n[health]\n")
	writeField(&b, "sleep_hours", formatFloat(h.SleepHours, unknown), unknown)
	writeField(&b, "deep_sleep_minutes", formatFloat(h.DeepSleepMinutes, unknown), unknown)
	writeField(&b, "sleep_efficiency", formatFloat(h.SleepEfficiency, unknown), unknown)
	writeField(&b, "resting_heart_rate", formatFloat(h.RestingHeartRate, unknown), unknown)
	writeField(&b, "hrv_ms", formatFloat(h.HRVMs, unknown), unknown)
	writeField(&b, "steps", formatInt(h.Steps, unknown), unknown)
	writeField(&b, "active_calories", formatFloat(h.ActiveCalories, unknown), unknown)
	writeField(&b, "blood_oxygen", formatFloat(h.BloodOxygen, unknown), unknown)
	writeField(&b, "respiratory_rate", formatFloat(h.RespiratoryRate, unknown), unknown)

	b.WriteString("\n[scores]\n")
	if len(rc.Scores) == 0 {
		writeField(&b, "scores", "", unknown)
	}
	keys := make([]string, 0, len(rc.Scores))
	for key := range rc.Scores {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	written := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		name := scoreKey(key)
		if name == "" {
			continue
		}
		if _, dup := written[name]; dup {
			continue
		}
		written[name] = struct{}{}
		value := rc.Scores[key]
		writeField(&b, name, formatFloat(&value, unknown), unknown)
	}

	b.WriteString("\n[environment]\n")
	env := rc.Environment.UnwrapOr(EnvironmentSnapshot{})
	present := rc.Environment.IsSome()
	field := func(v float64) string {
		if !present {
			return unknown
		}
		return formatFloat(&v, unknown)
	}
	writeField(&b, "temperature_c", field(env.Current.TemperatureC), unknown)
	writeField(&b, "humidity_pct", field(env.Current.HumidityPct), unknown)
	writeField(&b, "pressure_hpa", field(env.Current.PressureHPa), unknown)
	writeField(&b, "uv_index", field(env.Current.UVIndex), unknown)
	conditionCode := unknown
	if present {
		conditionCode = strconv.Itoa(env.Current.ConditionCode)
	}
	writeField(&b, "condition_code", conditionCode, unknown)
	aqi, pm25, pm10 := unknown, unknown, unknown
	if aq := env.AirQuality; present && aq != nil {
		aqi = formatFloat(&aq.AQI, unknown)
		pm25 = formatFloat(&aq.PM25, unknown)
		pm10 = formatFloat(aq.PM10, unknown)
	}
	writeField(&b, "aqi", aqi, unknown)
	writeField(&b, "pm25", pm25, unknown)
	writeField(&b, "pm10", pm10, unknown)

	b.WriteString("\n[recent_topics]\n")
	writeField(&b, "topics", strings.Join(rc.RecentTopics, ", "), unknown)

	return b.String()
}

var lineBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

// writeField emits one "key: value" line. Caller text is folded onto the
// line so it cannot open a new section.
func writeField(b *strings.Builder, key, value, unknown string) {
	value = lineBreaks.Replace(value)
	if strings.TrimSpace(value) == "" {
		value = unknown
	}
	fmt.Fprintf(b, "%s: %s\n", key, value)
}

// scoreKey reduces a caller supplied score name to [a-z0-9_].
func scoreKey(raw string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(raw)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return strings.Trim(b.String(), "_")
}

func formatFloat(v *float64, unknown string) string {
	if v == nil {
		return unknown
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func formatInt(v *int, unknown string) string {
	if v == nil {
		return unknown
	}
	return strconv.Itoa(*v)
}
