package convo

import "testing"

func TestExtractIntroducedName(t *testing.T) {
	pats := NewPatterns()

	tests := []struct {
		body string
		want string
		ok   bool
	}{
		{"This is Omar", "Omar", true},
		{"hey this is omar, driver for Mario's crew", "Omar", true},
		{"My name is Luis", "Luis", true},
		{"I'm Pedro", "Pedro", true},
		{"Omar here", "Omar", true},
		{"omar", "Omar", true},
		{"hello", "", false},
		{"yes", "", false},
		{"", "", false},
		{"didn't get a receipt", "", false},
	}
	for _, tt := range tests {
		got, ok := pats.ExtractIntroducedName(tt.body)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ExtractIntroducedName(%q) = %q,%v; want %q,%v", tt.body, got, ok, tt.want, tt.ok)
		}
	}
}

func TestAffirmativeNegative(t *testing.T) {
	pats := NewPatterns()

	for _, body := range []string{"YES", "yes", " y ", "Yep", "looks good", "si"} {
		if !pats.IsAffirmative(body) {
			t.Errorf("IsAffirmative(%q) = false", body)
		}
	}
	for _, body := range []string{"NO", "NOPE", "n", "wrong", "Incorrect"} {
		if !pats.IsNegative(body) {
			t.Errorf("IsNegative(%q) = false", body)
		}
	}
	for _, body := range []string{"maybe", "idk", "$42.17", ""} {
		if pats.IsAffirmative(body) || pats.IsNegative(body) {
			t.Errorf("%q classified as yes/no", body)
		}
	}
}

func TestIsMissingReceiptPhrase(t *testing.T) {
	pats := NewPatterns()

	for _, body := range []string{
		"didn't get a receipt",
		"didnt get a receipt at the pump",
		"I lost the receipt",
		"forgot the receipt sorry",
		"never got a receipt",
		"no receipt for this one",
	} {
		if !pats.IsMissingReceiptPhrase(body) {
			t.Errorf("IsMissingReceiptPhrase(%q) = false", body)
		}
	}
	if pats.IsMissingReceiptPhrase("here's the receipt") {
		t.Errorf("false positive on %q", "here's the receipt")
	}
}

func TestMatchLanguage(t *testing.T) {
	pats := NewPatterns()

	tests := []struct {
		body string
		want string
		ok   bool
	}{
		{"english", "en", true},
		{"English", "en", true},
		{" ENG ", "en", true},
		{"en", "en", true},
		{"ingles", "en", true},
		{"inglés", "en", true},
		{"spanish", "es", true},
		{"espanol", "es", true},
		{"Español", "es", true},
		{"es", "es", true},
		{"esp", "es", true},
		{"spa", "es", true},
		{"spanish.", "es", true},
		{"french", "", false},
		{"yes", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := pats.MatchLanguage(tt.body)
		if ok != tt.ok || got != tt.want {
			t.Errorf("MatchLanguage(%q) = %q,%v; want %q,%v", tt.body, got, ok, tt.want, tt.ok)
		}
	}
}

func TestParseMissedDetailsLabeled(t *testing.T) {
	d := ParseMissedDetails("store: RaceTrac\namount: $35\nitems: diesel\nproject: Sparrow")
	if d.Store == nil || *d.Store != "RaceTrac" {
		t.Fatalf("store: %v", d.Store)
	}
	if d.Amount == nil || *d.Amount != "$35" {
		t.Fatalf("amount: %v", d.Amount)
	}
	if d.Items == nil || *d.Items != "diesel" {
		t.Fatalf("items: %v", d.Items)
	}
	if d.Project == nil || *d.Project != "Sparrow" {
		t.Fatalf("project: %v", d.Project)
	}
}

func TestParseMissedDetailsPositional(t *testing.T) {
	d := ParseMissedDetails("RaceTrac, $35.50, diesel, Sparrow")
	if d.Store == nil || *d.Store != "RaceTrac" {
		t.Fatalf("store: %v", d.Store)
	}
	if d.Amount == nil || *d.Amount != "$35.50" {
		t.Fatalf("amount: %v", d.Amount)
	}
	if d.Project == nil || *d.Project != "Sparrow" {
		t.Fatalf("project: %v", d.Project)
	}
}

func TestParseMissedDetailsPartial(t *testing.T) {
	d := ParseMissedDetails("gas station")
	if d.Store == nil || *d.Store != "gas station" {
		t.Fatalf("store: %v", d.Store)
	}
	if d.Amount != nil || d.Items != nil || d.Project != nil {
		t.Fatalf("missing fields should stay blank: %+v", d)
	}
}
