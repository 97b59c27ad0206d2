// Package extract sends receipt images to the external recognition service
// and turns its raw, untrusted responses into validated record shapes.
package extract

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// The structured prompt telling the vision model exactly what to return.
const receiptPrompt = `You are a receipt reading assistant. Extract ALL information from this receipt image and return it as valid JSON.

Return ONLY a JSON object with this exact structure (no markdown, no explanation):

{
  "vendor_name": "Store name exactly as printed",
  "vendor_city": "City if visible, null otherwise",
  "vendor_state": "Two-letter state code if visible, null otherwise",
  "purchase_date": "YYYY-MM-DD format",
  "subtotal": 0.00,
  "tax": 0.00,
  "total": 0.00,
  "payment_method": "CASH or last 4 digits of card (e.g. VISA 1234)",
  "category": "One-word spend category guess, null if unsure",
  "line_items": [
    {
      "item_name": "Item description as printed",
      "quantity": 1,
      "unit_price": 0.00,
      "extended_price": 0.00
    }
  ]
}

Rules:
- All dollar amounts as numbers (no $ sign)
- If a value is not visible or unreadable, use null
- For returns/refunds, use negative amounts
- If quantity is not explicitly shown, default to 1
- Parse the date as YYYY-MM-DD regardless of how it appears on the receipt
- Return ONLY valid JSON, no other text`

// Recognizer is the contract for the external recognition service: image in,
// raw unvalidated text out. Transport failures are errors; garbage content
// is not, structuring decides that downstream.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte, contentType string) (string, error)
}

// Client calls an OpenAI-compatible chat-completions endpoint with the image
// inlined as a data URL.
type Client struct {
	http  *resty.Client
	model string
}

// NewClient builds a Recognizer for the given endpoint and model.
func NewClient(baseURL, apiKey, model string, timeout time.Duration) *Client {
	rc := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(apiKey).
		SetTimeout(timeout)
	return &Client{http: rc, model: model}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Recognize sends the image and returns the model's raw text content.
func (c *Client) Recognize(ctx context.Context, image []byte, contentType string) (string, error) {
	if contentType == "" {
		contentType = "image/jpeg"
	}
	dataURL := fmt.Sprintf("data:%s;base64,%s", contentType, base64.StdEncoding.EncodeToString(image))

	req := chatRequest{
		Model: c.model,
		Messages: []chatMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: receiptPrompt},
				{Type: "image_url", ImageURL: &imageURL{URL: dataURL, Detail: "high"}},
			},
		}},
		MaxTokens:   1500,
		Temperature: 0,
	}

	var out chatResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post("/v1/chat/completions")
	if err != nil {
		return "", fmt.Errorf("recognition call: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("recognition service status %d", resp.StatusCode())
	}
	if out.Error != nil {
		return "", fmt.Errorf("recognition service error: %s", out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("recognition service returned no choices")
	}
	return out.Choices[0].Message.Content, nil
}
