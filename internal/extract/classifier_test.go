package extract

import (
	"testing"

	"github.com/crewledger/crewledger/internal/model"
)

func TestParseClassification(t *testing.T) {
	cases := []struct {
		raw  string
		want model.DocType
	}{
		{`{"doc_type": "receipt", "confidence": 0.95}`, model.DocReceipt},
		{`{"doc_type": "invoice", "confidence": 0.88}`, model.DocInvoice},
		{`{"doc_type": "packing_slip", "confidence": 0.71}`, model.DocPackingSlip},
		{`{"doc_type": "purchase_order", "confidence": 0.64}`, model.DocPurchaseOrder},
		{`{"doc_type": "unknown", "confidence": 0.2}`, model.DocUnknown},
		{"```json\n{\"doc_type\": \"invoice\", \"confidence\": 0.9}\n```", model.DocInvoice},
		// Anything unreadable or off-list falls back to receipt.
		{`{"doc_type": "menu", "confidence": 0.9}`, model.DocReceipt},
		{`not json at all`, model.DocReceipt},
		{`null`, model.DocReceipt},
		{``, model.DocReceipt},
	}
	for _, tc := range cases {
		if got := ParseClassification(tc.raw); got != tc.want {
			t.Errorf("ParseClassification(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}
