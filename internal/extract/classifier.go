package extract

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/crewledger/crewledger/internal/model"
)

const classifyPrompt = `Look at this document image and classify it. Return ONLY a JSON object (no markdown, no explanation):

{"doc_type": "receipt", "confidence": 0.95}

doc_type must be exactly one of: receipt, invoice, packing_slip, purchase_order, unknown

- receipt: point-of-sale proof of payment with line items and a total
- invoice: a bill requesting payment, usually with an invoice number and terms
- packing_slip: a shipment manifest listing items delivered, no prices required
- purchase_order: an order confirmation issued by the buyer
- unknown: none of the above`

// Classifier decides what kind of document an image shows before the
// pipeline picks an extraction path. Implementations must be cheap relative
// to full extraction; classification runs on every inbound photo.
type Classifier interface {
	Classify(ctx context.Context, image []byte, contentType string) (model.DocType, error)
}

// Classify sends the image at low detail and parses the classification
// label. Anything the model says that is not a known label comes back as a
// receipt, which keeps an indecisive classifier from blocking intake.
func (c *Client) Classify(ctx context.Context, image []byte, contentType string) (model.DocType, error) {
	if contentType == "" {
		contentType = "image/jpeg"
	}
	dataURL := fmt.Sprintf("data:%s;base64,%s", contentType, base64.StdEncoding.EncodeToString(image))

	req := chatRequest{
		Model: c.model,
		Messages: []chatMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: classifyPrompt},
				{Type: "image_url", ImageURL: &imageURL{URL: dataURL, Detail: "low"}},
			},
		}},
		MaxTokens:   100,
		Temperature: 0,
	}

	var out chatResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post("/v1/chat/completions")
	if err != nil {
		return model.DocReceipt, fmt.Errorf("classification call: %w", err)
	}
	if resp.IsError() {
		return model.DocReceipt, fmt.Errorf("classification service status %d", resp.StatusCode())
	}
	if out.Error != nil {
		return model.DocReceipt, fmt.Errorf("classification service error: %s", out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return model.DocReceipt, fmt.Errorf("classification service returned no choices")
	}
	return ParseClassification(out.Choices[0].Message.Content), nil
}

// ParseClassification reads the classifier's raw reply. Malformed replies
// and unrecognized labels resolve to DocReceipt.
func ParseClassification(raw string) model.DocType {
	text := stripFences(raw)
	var payload struct {
		DocType    string  `json:"doc_type"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return model.DocReceipt
	}
	dt, ok := model.ParseDocType(payload.DocType)
	if !ok {
		return model.DocReceipt
	}
	return dt
}
