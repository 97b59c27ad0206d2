package reply

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/crewledger/crewledger/internal/model"
)

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func str(s string) *string { return &s }

func sampleRecord(items int) *model.Record {
	rec := &model.Record{
		Vendor:       str("Ace Home & Supply"),
		VendorCity:   str("Kissimmee"),
		VendorState:  str("FL"),
		PurchaseDate: str("2026-02-18"),
		Total:        dec("100.64"),
	}
	names := []string{"Utility Lighter", "Propane Exchange", "Work Gloves", "Tarp", "Duct Tape", "Zip Ties", "Caulk"}
	for i := 0; i < items; i++ {
		rec.Items = append(rec.Items, model.LineItem{
			Name:     names[i%len(names)],
			Quantity: decimal.NewFromInt(1),
			Extended: dec("7.59"),
		})
	}
	return rec
}

func TestSummaryFormat(t *testing.T) {
	got := Summary(sampleRecord(3), "Sparrow")
	if !strings.Contains(got, "Ace Home & Supply, Kissimmee FL - 02/18/26 - $100.64") {
		t.Fatalf("header line wrong:\n%s", got)
	}
	if !strings.Contains(got, "3 items: Utility Lighter ($7.59)") {
		t.Fatalf("items line wrong:\n%s", got)
	}
	if !strings.Contains(got, "Project: Sparrow") {
		t.Fatalf("project line missing:\n%s", got)
	}
}

func TestSummaryTruncatesAtFiveItems(t *testing.T) {
	got := Summary(sampleRecord(7), "")
	if !strings.Contains(got, "7 items:") || !strings.Contains(got, "+2 more") {
		t.Fatalf("truncation wrong:\n%s", got)
	}
	if strings.Count(got, "($") != 5 {
		t.Fatalf("expected 5 priced items shown:\n%s", got)
	}
}

func TestSummaryUnknowns(t *testing.T) {
	got := Summary(&model.Record{}, "")
	if !strings.Contains(got, "Unknown vendor") || !strings.Contains(got, "unknown amount") {
		t.Fatalf("unknown fallback wrong:\n%s", got)
	}
	if !strings.Contains(got, "No line items detected") {
		t.Fatalf("empty items wrong:\n%s", got)
	}
	if strings.Contains(got, "Project:") {
		t.Fatalf("no project line expected:\n%s", got)
	}
}

func TestConfirmPromptAsksYesNo(t *testing.T) {
	got := ConfirmPrompt(English, sampleRecord(1), "Sparrow", "Omar")
	if !strings.Contains(got, "Reply YES to save or NO to flag") || !strings.Contains(got, "Omar") {
		t.Fatalf("prompt wrong:\n%s", got)
	}
}

func TestSpanishVariants(t *testing.T) {
	if got := Confirmed(Spanish, "Omar"); !strings.Contains(got, "Gracias, Omar") {
		t.Fatalf("spanish confirmed wrong: %s", got)
	}
	if got := ConfirmPrompt(Spanish, sampleRecord(1), "Sparrow", "Omar"); !strings.Contains(got, "Responde SI") {
		t.Fatalf("spanish confirm prompt wrong: %s", got)
	}
	if got := Acknowledgment(Spanish, sampleRecord(1), "Sparrow", "Omar"); !strings.Contains(got, "¡Listo, Omar!") {
		t.Fatalf("spanish ack wrong: %s", got)
	}
}

func TestUnknownLanguageFallsBackToEnglish(t *testing.T) {
	if got := Confirmed(Lang("fr"), "Omar"); got != Confirmed(English, "Omar") {
		t.Fatalf("fallback wrong: %s", got)
	}
}

func TestLangFor(t *testing.T) {
	es := "es"
	junk := "xx"
	if LangFor(nil) != English || LangFor(&junk) != English {
		t.Fatal("unset or unknown preference must read as English")
	}
	if LangFor(&es) != Spanish {
		t.Fatal("es preference must read as Spanish")
	}
}

func TestBilingualPrompts(t *testing.T) {
	if got := LanguagePrompt(); !strings.Contains(got, "English or Spanish") || !strings.Contains(got, "español") {
		t.Fatalf("language prompt must carry both languages: %s", got)
	}
	if got := LanguageInvalid(); !strings.Contains(got, "English or Spanish") || !strings.Contains(got, "español") {
		t.Fatalf("language reprompt must carry both languages: %s", got)
	}
}

func TestSingleItemSingular(t *testing.T) {
	got := Summary(sampleRecord(1), "")
	if !strings.Contains(got, "1 item:") {
		t.Fatalf("singular form wrong:\n%s", got)
	}
}
