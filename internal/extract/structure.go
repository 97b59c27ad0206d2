package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/crewledger/crewledger/internal/model"
)

// rawPayload mirrors the JSON the recognition service is asked to emit.
// Every field is soft-typed: the service is untrusted and routinely returns
// numbers as strings or omits keys.
type rawPayload struct {
	VendorName   *string         `json:"vendor_name"`
	VendorCity   *string         `json:"vendor_city"`
	VendorState  *string         `json:"vendor_state"`
	PurchaseDate *string         `json:"purchase_date"`
	Subtotal     json.RawMessage `json:"subtotal"`
	Tax          json.RawMessage `json:"tax"`
	Total        json.RawMessage `json:"total"`
	Payment      *string         `json:"payment_method"`
	Category     *string         `json:"category"`
	LineItems    []rawItem       `json:"line_items"`
}

type rawItem struct {
	ItemName      *string         `json:"item_name"`
	Quantity      json.RawMessage `json:"quantity"`
	UnitPrice     json.RawMessage `json:"unit_price"`
	ExtendedPrice json.RawMessage `json:"extended_price"`
}

// Structure validates a raw recognition response into a typed extraction.
// Incidental markup fencing is stripped before parsing. A payload that is
// not a non-empty JSON object returns model.ErrExtractionFailed; the caller
// still creates a record for it, flagged, with no line items.
func Structure(raw string) (*model.Extraction, error) {
	text := stripFences(raw)
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("empty payload: %w", model.ErrExtractionFailed)
	}

	// Require an object with at least one key. "null", arrays, and bare
	// scalars would otherwise decode into an all-zero payload and slip
	// through as an empty-but-successful extraction.
	var shape map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &shape); err != nil {
		return nil, fmt.Errorf("parse payload: %v: %w", err, model.ErrExtractionFailed)
	}
	if len(shape) == 0 {
		return nil, fmt.Errorf("payload is not a JSON object: %w", model.ErrExtractionFailed)
	}

	var payload rawPayload
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return nil, fmt.Errorf("parse payload: %v: %w", err, model.ErrExtractionFailed)
	}

	out := &model.Extraction{
		Vendor:             cleanStr(payload.VendorName),
		VendorCity:         cleanStr(payload.VendorCity),
		VendorState:        cleanStr(payload.VendorState),
		PurchaseDate:       cleanStr(payload.PurchaseDate),
		Subtotal:           coerceMoney(payload.Subtotal),
		Tax:                coerceMoney(payload.Tax),
		Total:              coerceMoney(payload.Total),
		Payment:            cleanStr(payload.Payment),
		CategorySuggestion: cleanStr(payload.Category),
		Raw:                json.RawMessage(text),
	}

	for _, it := range payload.LineItems {
		name := "Unknown item"
		if s := cleanStr(it.ItemName); s != nil {
			name = *s
		}
		qty := decimal.NewFromInt(1)
		if q := coerceMoney(it.Quantity); q != nil {
			qty = *q
		}
		out.Items = append(out.Items, model.ExtractedItem{
			Name:       name,
			Quantity:   qty,
			UnitAmount: coerceMoney(it.UnitPrice),
			Extended:   coerceMoney(it.ExtendedPrice),
		})
	}
	return out, nil
}

// stripFences removes markdown code-fence wrapping the model sometimes adds
// despite instructions.
func stripFences(raw string) string {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	var kept []string
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

func cleanStr(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" || strings.EqualFold(v, "null") {
		return nil
	}
	return &v
}

// coerceMoney turns a JSON number, numeric string, or dollar-prefixed string
// into a decimal. Anything else, including JSON null, is "unknown", nil.
// Zero is a valid amount and round-trips as zero.
func coerceMoney(raw json.RawMessage) *decimal.Decimal {
	if len(raw) == 0 {
		return nil
	}
	s := strings.TrimSpace(string(raw))
	if s == "null" {
		return nil
	}
	s = strings.Trim(s, `"`)
	s = strings.TrimSpace(strings.TrimPrefix(s, "$"))
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	d = d.Round(2)
	return &d
}
