package advice

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	apperrors "github.com/yanqian/daily-advisor/pkg/errors"
)

const completeAdviceJSON = `{"greeting":"Hi","condition_summary":"Rested","condition_detail":"Slept 7h","daily_try":{"title":"Stretch","detail":"Five minutes","topic":"stretching"},"closing_message":"Bye","unexpected":42}`

func textOutput(text string) RawModelOutput {
	return RawModelOutput{Blocks: []ContentBlock{{Type: "text", Text: text}}}
}

func TestValidateCompleteAdvice(t *testing.T) {
	advice, err := Validate(textOutput(completeAdviceJSON))
	require.NoError(t, err)
	require.Equal(t, "Hi", advice.Greeting)
	require.Equal(t, "Rested", advice.ConditionSummary)
	require.Equal(t, "Slept 7h", advice.ConditionDetail)
	require.Equal(t, DailyTry{Title: "Stretch", Detail: "Five minutes", Topic: "stretching"}, advice.DailyTry)
	require.Equal(t, "Bye", advice.ClosingMessage)
}

func TestValidateAcceptsCamelCaseAndFences(t *testing.T) {
	text := "```json\n" + `{"greeting":"Hi","conditionSummary":"Ok","conditionDetail":"Fine","dailyTry":{"title":"Drink Water, Often!","detail":"Eight glasses"},"closingMessage":"Later","environmentAdaptation":"Bring an umbrella","actionSuggestions":"Refill your bottle"}` + "\n```"
	advice, err := Validate(textOutput(text))
	require.NoError(t, err)
	require.Equal(t, "drink-water-often", advice.DailyTry.Topic)
	require.Equal(t, "Bring an umbrella", advice.EnvironmentAdaptation)
	require.Equal(t, []string{"Refill your bottle"}, advice.ActionSuggestions)
}

func TestValidateSkipsNonTextBlocks(t *testing.T) {
	raw := RawModelOutput{Blocks: []ContentBlock{
		{Type: "thinking", Text: "hmm"},
		{Type: "text", Text: completeAdviceJSON},
	}}
	_, err := Validate(raw)
	require.NoError(t, err)
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name  string
		raw   RawModelOutput
		code  string
		field string
	}{
		{name: "no blocks", raw: RawModelOutput{}, code: CodeMalformedResponse},
		{name: "only tool use", raw: RawModelOutput{Blocks: []ContentBlock{{Type: "tool_use"}}}, code: CodeMalformedResponse},
		{name: "prose", raw: textOutput("Here is your advice!"), code: CodeNotJSON},
		{name: "array", raw: textOutput(`["a"]`), code: CodeNotJSON},
		{name: "empty object", raw: textOutput(`{}`), code: CodeIncompleteAdvice, field: "greeting"},
		{
			name:  "blank summary",
			raw:   textOutput(`{"greeting":"Hi","condition_summary":"  "}`),
			code:  CodeIncompleteAdvice,
			field: "condition_summary",
		},
		{
			name:  "daily try without detail",
			raw:   textOutput(`{"greeting":"Hi","condition_summary":"a","condition_detail":"b","daily_try":{"title":"t"},"closing_message":"c"}`),
			code:  CodeIncompleteAdvice,
			field: "daily_try.detail",
		},
		{
			name:  "daily try is a string",
			raw:   textOutput(`{"greeting":"Hi","condition_summary":"a","condition_detail":"b","daily_try":"walk","closing_message":"c"}`),
			code:  CodeIncompleteAdvice,
			field: "daily_try.title",
		},
		{
			name:  "missing closing",
			raw:   textOutput(`{"greeting":"Hi","condition_summary":"a","condition_detail":"b","daily_try":{"title":"t","detail":"d"}}`),
			code:  CodeIncompleteAdvice,
			field: "closing_message",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Validate(tc.raw)
			require.Error(t, err)
			require.True(t, apperrors.IsCode(err, tc.code), err.Error())
			require.Equal(t, tc.field, MissingFieldOf(err))
			require.True(t, Recoverable(err))
		})
	}
}

func TestValidateSupplement(t *testing.T) {
	tip, err := ValidateSupplement(textOutput(`{"title":"Stretch","message":"Reach up"}`))
	require.NoError(t, err)
	require.Equal(t, Supplement{Title: "Stretch", Message: "Reach up"}, tip)

	_, err = ValidateSupplement(textOutput(`{"title":"Stretch"}`))
	require.Equal(t, "message", MissingFieldOf(err))
}

func TestValidateIsTotal(t *testing.T) {
	keys := []string{"greeting", "condition_summary", "conditionDetail", "daily_try", "closing_message", "title", "detail", "other"}
	rapid.Check(t, func(t *rapid.T) {
		var text string
		if rapid.Bool().Draw(t, "structured") {
			text = "{"
			n := rapid.IntRange(0, len(keys)).Draw(t, "n")
			for i := 0; i < n; i++ {
				if i > 0 {
					text += ","
				}
				key := rapid.SampledFrom(keys).Draw(t, "key")
				value := rapid.SampledFrom([]string{`"x"`, `""`, `1`, `null`, `{"title":"t","detail":"d"}`, `["a"]`}).Draw(t, "value")
				text += `"` + key + `":` + value
			}
			text += "}"
		} else {
			text = rapid.String().Draw(t, "text")
		}

		advice, err := Validate(textOutput(text))
		if err != nil {
			code := apperrors.CodeOf(err)
			if code != CodeNotJSON && code != CodeIncompleteAdvice && code != CodeMalformedResponse {
				t.Fatalf("unexpected code %q", code)
			}
			return
		}
		if !isCompleteAdvice(advice) || advice.DailyTry.Topic == "" {
			t.Fatalf("incomplete advice accepted: %+v", advice)
		}
	})
}

func TestSlugify(t *testing.T) {
	require.Equal(t, "box-breathing", slugify("  Box Breathing "))
	require.Equal(t, "10分歩く", slugify("10分歩く"))
	require.Equal(t, "daily-try", slugify("!!!"))
}
