package advice

import "strings"

const generalExampleSet = "general"

// exampleSets are few-shot advisories keyed by primary interest.
var exampleSets = map[string]string{
	"fitness": `Example for a user focused on fitness:
{"greeting":"Morning, Alex!","condition_summary":"Well rested with a steady heart rate.","condition_detail":"7.5 hours of sleep and a resting heart rate of 58 suggest you recovered well from yesterday's run.","daily_try":{"title":"Add four strides to your easy run","summary":"Short accelerations build speed safely.","detail":"After a 20 minute easy run, do four 20 second strides with a full walk back between each.","topic":"running-strides"},"closing_message":"Enjoy the extra spring in your step.","action_suggestions":["Warm up for five minutes","Hydrate after the run"]}`,
	"sleep": `Example for a user focused on sleep:
{"greeting":"Good morning, Sam.","condition_summary":"Sleep was a little short.","condition_detail":"You slept 5.8 hours with 48 minutes of deep sleep, below your usual range.","daily_try":{"title":"Set a wind-down alarm","summary":"A reminder makes bedtime easier.","detail":"Set an alarm one hour before your target bedtime and use it as the cue to dim lights and stop screens.","topic":"wind-down-alarm"},"closing_message":"Tonight is a fresh chance to rest."}`,
	"nutrition": `Example for a user focused on nutrition:
{"greeting":"Hello, Mia!","condition_summary":"Energy looks balanced today.","condition_detail":"Your activity is moderate and your heart rate variability is stable.","daily_try":{"title":"Add a colorful vegetable to lunch","summary":"Color adds fiber and micronutrients.","detail":"Pick one vegetable you have not eaten this week and add a handful to your lunch.","topic":"colorful-vegetables"},"closing_message":"Good food is good care."}`,
	"stress": `Example for a user focused on stress:
{"greeting":"Hi Ken.","condition_summary":"Your body shows signs of tension.","condition_detail":"Heart rate variability is lower than usual and your resting heart rate is up by 5 bpm.","daily_try":{"title":"Try box breathing","summary":"Four slow counts calm the nervous system.","detail":"Breathe in for four counts, hold for four, out for four, hold for four. Repeat for three minutes.","topic":"box-breathing"},"closing_message":"Be gentle with yourself today."}`,
	"beauty": `Example for a user focused on skin and beauty:
{"greeting":"Good morning, Yui!","condition_summary":"Rested, with dry air outside.","condition_detail":"You slept well, and humidity today is only 30 percent with a high UV index.","daily_try":{"title":"Layer moisturizer under sunscreen","summary":"Dry air and UV both stress the skin.","detail":"Apply a light moisturizer, wait a minute, then apply SPF 30 or higher before going out.","topic":"skin-hydration"},"closing_message":"Your skin will thank you.","environment_adaptation":"Reapply sunscreen at midday."}`,
	"work": `Example for a user focused on work performance:
{"greeting":"Happy Monday, Lee.","condition_summary":"Solid sleep for a fresh week.","condition_detail":"7 hours of sleep and normal heart rate give you a good base for focused work.","daily_try":{"title":"Work in 50 minute blocks","summary":"Planned breaks keep focus sharp.","detail":"Work for 50 minutes, then stand and move for 10. Repeat through the morning.","topic":"focus-blocks"},"closing_message":"Make it a steady week."}`,
	generalExampleSet: `Example for a general wellbeing user:
{"greeting":"Good morning!","condition_summary":"A fairly balanced day.","condition_detail":"Sleep and heart rate are within your usual range.","daily_try":{"title":"Take a ten minute walk after lunch","summary":"Light movement helps digestion and mood.","detail":"Walk at an easy pace for ten minutes right after lunch.","topic":"post-lunch-walk"},"closing_message":"Have a good day."}`,
}

// exampleSetFor picks the example set for the first listed interest.
func exampleSetFor(profile UserProfile) (string, string) {
	key := strings.ToLower(strings.TrimSpace(profile.PrimaryInterest()))
	if text, ok := exampleSets[key]; ok {
		return key, text
	}
	return generalExampleSet, exampleSets[generalExampleSet]
}
