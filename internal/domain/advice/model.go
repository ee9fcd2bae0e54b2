package advice

import (
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/yanqian/daily-advisor/pkg/metrics"
)

// Request is the bundle accepted by the advice endpoint.
type Request struct {
	UserID       string             `json:"userId"`
	Date         string             `json:"date,omitempty"`
	Timezone     string             `json:"timezone,omitempty"`
	Locale       string             `json:"locale,omitempty"`
	Profile      UserProfile        `json:"profile"`
	Health       *HealthSnapshot    `json:"health,omitempty"`
	Location     *Location          `json:"location,omitempty"`
	Scores       map[string]float64 `json:"scores,omitempty"`
	RecentTopics []string           `json:"recentTopics,omitempty"`
}

// UserProfile is the profile snapshot sent along with each request.
type UserProfile struct {
	Nickname  string   `json:"nickname,omitempty"`
	AgeYears  *int     `json:"ageYears,omitempty"`
	Gender    string   `json:"gender,omitempty"`
	HeightCm  *float64 `json:"heightCm,omitempty"`
	WeightKg  *float64 `json:"weightKg,omitempty"`
	Interests []string `json:"interests,omitempty"`
	Goal      string   `json:"goal,omitempty"`
}

// PrimaryInterest is the first stated interest, or "" when none were given.
func (p UserProfile) PrimaryInterest() string {
	if len(p.Interests) == 0 {
		return ""
	}
	return p.Interests[0]
}

// HealthSnapshot holds the day's measurements. Nil fields were not measured.
type HealthSnapshot struct {
	SleepHours       *float64  `json:"sleepHours,omitempty"`
	DeepSleepMinutes *float64  `json:"deepSleepMinutes,omitempty"`
	SleepEfficiency  *float64  `json:"sleepEfficiency,omitempty"`
	RestingHeartRate *float64  `json:"restingHeartRate,omitempty"`
	HRVMs            *float64  `json:"hrvMs,omitempty"`
	Steps            *int      `json:"steps,omitempty"`
	ActiveCalories   *float64  `json:"activeCalories,omitempty"`
	BloodOxygen      *float64  `json:"bloodOxygen,omitempty"`
	RespiratoryRate  *float64  `json:"respiratoryRate,omitempty"`
	MeasuredAt       time.Time `json:"measuredAt,omitempty"`
}

// IsEmpty reports whether no measurement is present.
func (h HealthSnapshot) IsEmpty() bool {
	return h.SleepHours == nil && h.DeepSleepMinutes == nil && h.SleepEfficiency == nil &&
		h.RestingHeartRate == nil && h.HRVMs == nil && h.Steps == nil &&
		h.ActiveCalories == nil && h.BloodOxygen == nil && h.RespiratoryRate == nil
}

// Location is a WGS84 coordinate.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// EnvironmentSnapshot is the normalized gateway record.
type EnvironmentSnapshot struct {
	Current    WeatherConditions `json:"current"`
	AirQuality *AirQuality       `json:"airQuality,omitempty"`
	FetchedAt  time.Time         `json:"fetchedAt"`
}

// WeatherConditions are the current weather values at a coordinate.
type WeatherConditions struct {
	TemperatureC  float64 `json:"temperature"`
	HumidityPct   float64 `json:"humidity"`
	PressureHPa   float64 `json:"pressure"`
	UVIndex       float64 `json:"uvIndex"`
	ConditionCode int     `json:"conditionCode"`
}

// AirQuality holds pollution readings. PM10 is not always reported.
type AirQuality struct {
	AQI  float64  `json:"aqi"`
	PM25 float64  `json:"pm25"`
	PM10 *float64 `json:"pm10,omitempty"`
}

// RequestContext is the immutable input of one pipeline invocation.
type RequestContext struct {
	UserID       string
	Date         string
	Locale       string
	Profile      UserProfile
	Health       HealthSnapshot
	Environment  fn.Option[EnvironmentSnapshot]
	Scores       map[string]float64
	Now          time.Time
	Slot         DaySlot
	RecentTopics []string
	Weekday      time.Weekday
	IsWeekend    bool
	IsMonday     bool
	IsFriday     bool
}

// GeneratedAdvice is a validated advisory. Instances only come out of
// Validate or the static fallback table, so required fields are never empty.
type GeneratedAdvice struct {
	Greeting              string    `json:"greeting"`
	ConditionSummary      string    `json:"conditionSummary"`
	ConditionDetail       string    `json:"conditionDetail"`
	DailyTry              DailyTry  `json:"dailyTry"`
	ClosingMessage        string    `json:"closingMessage"`
	EnvironmentAdaptation string    `json:"environmentAdaptation,omitempty"`
	ActionSuggestions     []string  `json:"actionSuggestions,omitempty"`
	GeneratedAt           time.Time `json:"generatedAt"`
}

// DailyTry is the one suggestion of the day.
type DailyTry struct {
	Title   string `json:"title"`
	Summary string `json:"summary,omitempty"`
	Detail  string `json:"detail"`
	Topic   string `json:"topic"`
}

// ServedFrom tells the caller which path produced the advisory.
type ServedFrom string

const (
	ServedFromCache          ServedFrom = "cache"
	ServedFromGenerated      ServedFrom = "generated"
	ServedFromFallbackCache  ServedFrom = "fallbackCache"
	ServedFromStaticFallback ServedFrom = "staticFallback"
)

// Result is returned to API consumers.
type Result struct {
	Advice     GeneratedAdvice     `json:"advice"`
	ServedFrom ServedFrom          `json:"servedFrom"`
	Date       string              `json:"date"`
	Slot       DaySlot             `json:"slot"`
	IsStale    bool                `json:"isStale"`
	StaleDays  int                 `json:"staleDays,omitempty"`
	Notice     string              `json:"notice,omitempty"`
	TokenUsage *metrics.TokenUsage `json:"tokenUsage,omitempty"`
}

// CacheEntry is the persisted advisory for one (user, date) key.
type CacheEntry struct {
	Advice      GeneratedAdvice `json:"advice"`
	GeneratedAt time.Time       `json:"generatedAt"`
}

// IsFresh reports whether the entry is still inside ttl at now.
func (e CacheEntry) IsFresh(now time.Time, ttl time.Duration) bool {
	if e.GeneratedAt.IsZero() {
		return false
	}
	return now.Sub(e.GeneratedAt) < ttl
}

// FallbackHit is a previous day's entry found by the fallback chain.
type FallbackHit struct {
	Date    string
	Entry   CacheEntry
	DaysOld int
}

// TopicRecord is one row of the topic history ledger.
type TopicRecord struct {
	Topic string `json:"topic"`
	Date  string `json:"date"`
}

// PromptLayer is one segment of a layered prompt.
type PromptLayer struct {
	Name      string
	Text      string
	Cacheable bool
}

// LayeredPrompt is the output of the prompt builder.
type LayeredPrompt struct {
	Instructions PromptLayer
	Examples     PromptLayer
	UserData     PromptLayer
}

// SystemLayers returns the non user-data layers in send order, skipping empty ones.
func (p LayeredPrompt) SystemLayers() []PromptLayer {
	layers := make([]PromptLayer, 0, 2)
	for _, layer := range []PromptLayer{p.Instructions, p.Examples} {
		if layer.Text == "" {
			continue
		}
		layers = append(layers, layer)
	}
	return layers
}

// EstimateTokens gives a rough size of the prompt for logging.
func (p LayeredPrompt) EstimateTokens() int {
	chars := len(p.Instructions.Text) + len(p.Examples.Text) + len(p.UserData.Text)
	return chars / 4
}

// ContentBlock is one block of a provider response.
type ContentBlock struct {
	Type string
	Text string
}

// RawModelOutput is the unvalidated provider response.
type RawModelOutput struct {
	Model  string
	Blocks []ContentBlock
	Usage  metrics.TokenUsage
}

// ProviderRequest is what a Provider adapter sends upstream.
type ProviderRequest struct {
	Model       string
	MaxTokens   int
	Temperature fn.Option[float64]
	Credential  string
	System      []PromptLayer
	User        string
}

// SupplementResult is returned by the supplementary content endpoint.
type SupplementResult struct {
	ID         string     `json:"id,omitempty"`
	Allowed    bool       `json:"allowed"`
	Reason     string     `json:"reason,omitempty"`
	Slot       DaySlot    `json:"slot"`
	Date       string     `json:"date"`
	Title      string     `json:"title,omitempty"`
	Message    string     `json:"message,omitempty"`
	ServedFrom ServedFrom `json:"servedFrom,omitempty"`
}

// Supplement is a validated supplementary tip.
type Supplement struct {
	Title   string
	Message string
}
