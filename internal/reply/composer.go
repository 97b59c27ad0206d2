// Package reply builds the short templated messages sent back to workers.
package reply

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/crewledger/crewledger/internal/model"
)

// Keep item lists short so the message stays readable on a phone.
const maxItemsShown = 5

// Lang selects the reply language for a worker. Workers pick one on first
// contact; English is the fallback for any message without a translation.
type Lang string

const (
	English Lang = "en"
	Spanish Lang = "es"
)

// LangFor maps a worker's stored preference to a Lang. Unset or unknown
// preferences read as English.
func LangFor(pref *string) Lang {
	if pref != nil && *pref == string(Spanish) {
		return Spanish
	}
	return English
}

var catalog = map[string]map[Lang]string{
	"ack": {
		English: "Got it, %s! Saved:\n%s",
		Spanish: "¡Listo, %s! Guardado:\n%s",
	},
	"confirm_prompt": {
		English: "%s\n\nIs that correct, %s? Reply YES to save or NO to flag.",
		Spanish: "%s\n\n¿Está correcto, %s? Responde SI para guardar o NO para marcar.",
	},
	"confirmed": {
		English: "Saved. Thanks, %s!",
		Spanish: "Guardado. ¡Gracias, %s!",
	},
	"rejected": {
		English: "No problem, %s. Send a clearer photo of the receipt, or text me the details (store, amount, items, project).",
		Spanish: "No hay problema, %s. Manda una foto más clara del recibo, o escríbeme los detalles (tienda, monto, artículos, proyecto).",
	},
	"manual_entry_saved": {
		English: "Got it, %s. I saved your notes and someone will review them.",
		Spanish: "Listo, %s. Guardé tus notas y alguien las va a revisar.",
	},
	"missed_receipt_prompt": {
		English: "No receipt, no problem, %s. Text me: the store, the amount, what you bought, and the project.",
		Spanish: "Sin recibo no hay problema, %s. Escríbeme: la tienda, el monto, qué compraste y el proyecto.",
	},
	"missed_receipt_saved": {
		English: "Thanks, %s. I logged it for review.",
		Spanish: "Gracias, %s. Lo registré para revisión.",
	},
	"extraction_failed": {
		English: "Sorry %s, I couldn't read that receipt. I saved it for review - you can also text me the details.",
		Spanish: "Lo siento %s, no pude leer ese recibo. Lo guardé para revisión, también puedes escribirme los detalles.",
	},
	"media_failed": {
		English: "Sorry %s, that photo didn't come through. Please try sending it again.",
		Spanish: "Lo siento %s, esa foto no llegó. Por favor intenta enviarla otra vez.",
	},
	"unrecognized": {
		English: "Hi %s! Send a photo of a receipt with the project name, or tell me if you didn't get a receipt.",
		Spanish: "¡Hola %s! Manda una foto de un recibo con el nombre del proyecto, o avísame si no te dieron recibo.",
	},
	"in_progress": {
		English: "One sec, %s - still working on your last message.",
		Spanish: "Un momento, %s, todavía estoy con tu último mensaje.",
	},
	"welcome": {
		English: "Welcome to CrewLedger, %s! You're all set. Send me a photo of a receipt with the project name to get started. Example: [photo] Project Sparrow",
		Spanish: "¡Bienvenido a CrewLedger, %s! Ya quedaste. Mándame una foto de un recibo con el nombre del proyecto para empezar. Ejemplo: [foto] Proyecto Sparrow",
	},
	"quality_warning": {
		English: "Heads up: that photo looks small or blurry, the read may be off.",
		Spanish: "Ojo: esa foto se ve pequeña o borrosa, la lectura puede fallar.",
	},
	"duplicate_warning": {
		English: "Heads up: this looks like a receipt you already sent, so I flagged it for review.",
		Spanish: "Ojo: parece un recibo que ya enviaste, así que lo marqué para revisión.",
	},
	"invoice_saved": {
		English: "Got it, %s. Logged the invoice from %s for office review.",
		Spanish: "Listo, %s. Registré la factura de %s para revisión de oficina.",
	},
	"confirm_reprompt": {
		English: "Reply YES to save that receipt or NO to flag it.",
		Spanish: "Responde SI para guardar ese recibo o NO para marcarlo.",
	},
	"packing_slip_saved": {
		English: "Got it, %s. Logged the packing slip from %s.",
		Spanish: "Listo, %s. Registré la guía de envío de %s.",
	},
}

func text(key string, lang Lang) string {
	if s, ok := catalog[key][lang]; ok {
		return s
	}
	return catalog[key][English]
}

// Summary formats an extracted record: vendor with location, date, total,
// a capped line-item list and the resolved project label.
func Summary(rec *model.Record, projectName string) string {
	vendor := "Unknown vendor"
	if rec.Vendor != nil {
		vendor = *rec.Vendor
	}
	location := ""
	parts := make([]string, 0, 2)
	if rec.VendorCity != nil {
		parts = append(parts, *rec.VendorCity)
	}
	if rec.VendorState != nil {
		parts = append(parts, *rec.VendorState)
	}
	if len(parts) > 0 {
		location = ", " + strings.Join(parts, " ")
	}

	dateStr := "unknown date"
	if rec.PurchaseDate != nil {
		dateStr = shortDate(*rec.PurchaseDate)
	}

	totalStr := "unknown amount"
	if rec.Total != nil {
		totalStr = "$" + rec.Total.StringFixed(2)
	}

	lines := []string{
		fmt.Sprintf("%s%s - %s - %s", vendor, location, dateStr, totalStr),
		itemsLine(rec.Items),
	}
	if projectName != "" {
		lines = append(lines, "Project: "+projectName)
	}
	return strings.Join(lines, "\n")
}

// Acknowledgment is the auto-accept reply after a successful intake.
func Acknowledgment(lang Lang, rec *model.Record, projectName, workerName string) string {
	return fmt.Sprintf(text("ack", lang), workerName, Summary(rec, projectName))
}

// ConfirmPrompt is the confirm-required reply: the summary plus a YES/NO ask.
func ConfirmPrompt(lang Lang, rec *model.Record, projectName, workerName string) string {
	return fmt.Sprintf(text("confirm_prompt", lang), Summary(rec, projectName), workerName)
}

func itemsLine(items []model.LineItem) string {
	if len(items) == 0 {
		return "No line items detected"
	}
	count := len(items)
	shown := items
	if count > maxItemsShown {
		shown = items[:maxItemsShown]
	}
	parts := make([]string, 0, len(shown))
	for _, it := range shown {
		price := it.Extended
		if price == nil {
			price = it.UnitAmount
		}
		if price != nil {
			parts = append(parts, fmt.Sprintf("%s ($%s)", it.Name, price.StringFixed(2)))
		} else {
			parts = append(parts, it.Name)
		}
	}
	plural := "s"
	if count == 1 {
		plural = ""
	}
	line := fmt.Sprintf("%d item%s: %s", count, plural, strings.Join(parts, ", "))
	if count > maxItemsShown {
		line += fmt.Sprintf(" +%d more", count-maxItemsShown)
	}
	return line
}

// shortDate converts YYYY-MM-DD to MM/DD/YY for readability; anything else
// passes through unchanged.
func shortDate(date string) string {
	if len(date) == 10 && date[4] == '-' && date[7] == '-' {
		return fmt.Sprintf("%s/%s/%s", date[5:7], date[8:10], date[2:4])
	}
	return date
}

// TotalString formats an optional amount for log and reply contexts.
func TotalString(d *decimal.Decimal) string {
	if d == nil {
		return "?"
	}
	return "$" + d.StringFixed(2)
}

// Canned replies for the guided flows and failure paths.

func Confirmed(lang Lang, name string) string {
	return fmt.Sprintf(text("confirmed", lang), name)
}

func Rejected(lang Lang, name string) string {
	return fmt.Sprintf(text("rejected", lang), name)
}

func ManualEntrySaved(lang Lang, name string) string {
	return fmt.Sprintf(text("manual_entry_saved", lang), name)
}

func MissedReceiptPrompt(lang Lang, name string) string {
	return fmt.Sprintf(text("missed_receipt_prompt", lang), name)
}

func MissedReceiptSaved(lang Lang, name string) string {
	return fmt.Sprintf(text("missed_receipt_saved", lang), name)
}

func ExtractionFailed(lang Lang, name string) string {
	return fmt.Sprintf(text("extraction_failed", lang), name)
}

func MediaFailed(lang Lang, name string) string {
	return fmt.Sprintf(text("media_failed", lang), name)
}

func Unrecognized(lang Lang, name string) string {
	return fmt.Sprintf(text("unrecognized", lang), name)
}

func InProgress(lang Lang, name string) string {
	return fmt.Sprintf(text("in_progress", lang), name)
}

// AskName goes out before the worker has picked a language, so it stays
// English only.
func AskName() string {
	return "Hey! Looks like this is your first time texting CrewLedger. What's your name? Just reply with your first name and I'll get you set up."
}

func Welcome(lang Lang, name string) string {
	return fmt.Sprintf(text("welcome", lang), name)
}

func QualityWarning(lang Lang) string {
	return text("quality_warning", lang)
}

func DuplicateWarning(lang Lang) string {
	return text("duplicate_warning", lang)
}

// ConfirmReprompt nudges a worker whose reply during a pending
// confirmation matched neither YES nor NO.
func ConfirmReprompt(lang Lang) string {
	return text("confirm_reprompt", lang)
}

func InvoiceSaved(lang Lang, name, vendor string) string {
	return fmt.Sprintf(text("invoice_saved", lang), name, vendor)
}

func PackingSlipSaved(lang Lang, name, vendor string) string {
	return fmt.Sprintf(text("packing_slip_saved", lang), name, vendor)
}

// LanguagePrompt and LanguageInvalid go out before a preference exists, so
// both languages ride in one message.
func LanguagePrompt() string {
	return "Welcome to CrewLedger! Which language do you prefer, English or Spanish?\n¡Bienvenido a CrewLedger! ¿Qué idioma prefieres, inglés o español?"
}

func LanguageInvalid() string {
	return "Please reply English or Spanish.\nPor favor responde inglés o español."
}
