package understand_test

import (
	"testing"

	"github.com/harkhq/hark/understand"
)

func TestParseIntentDefaultsToOther(t *testing.T) {
	cases := map[string]understand.Intent{
		"Save":           understand.IntentSave,
		"save":           understand.IntentSave,
		" Retrieve ":     understand.IntentRetrieve,
		"Neither":        understand.IntentOther,
		"":               understand.IntentOther,
		"I think Save?":  understand.IntentOther,
		"something else": understand.IntentOther,
	}
	for in, want := range cases {
		if got := understand.ParseIntent(in); got != want {
			t.Errorf("ParseIntent(%q) = %s, want %s", in, got, want)
		}
	}
}
