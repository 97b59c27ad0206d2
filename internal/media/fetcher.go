// Package media retrieves message attachments from the messaging gateway.
package media

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Images below this size are usually unreadable photos; the reply carries a
// quality warning but the pipeline proceeds.
const minImageBytes = 10 * 1024

// Image is a fetched attachment.
type Image struct {
	Bytes       []byte
	ContentType string
	// LowQuality is set for suspiciously small files.
	LowQuality bool
}

// Fetcher retrieves attachment bytes for a gateway media reference.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Image, error)
}

// GatewayFetcher downloads media from gateway-hosted URLs using the account
// credentials the gateway requires.
type GatewayFetcher struct {
	http *resty.Client
}

// NewGatewayFetcher builds a Fetcher with basic-auth gateway credentials.
func NewGatewayFetcher(accountSID, authToken string, timeout time.Duration) *GatewayFetcher {
	rc := resty.New().SetTimeout(timeout)
	if accountSID != "" {
		rc.SetBasicAuth(accountSID, authToken)
	}
	return &GatewayFetcher{http: rc}
}

// Fetch downloads a single attachment. Retrieval failure is an error; the
// caller records a flagged attempt with the URL so nothing is silently lost.
func (f *GatewayFetcher) Fetch(ctx context.Context, url string) (*Image, error) {
	resp, err := f.http.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("fetch media: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch media: status %d", resp.StatusCode())
	}
	body := resp.Body()
	if len(body) == 0 {
		return nil, fmt.Errorf("fetch media: empty body")
	}
	return &Image{
		Bytes:       body,
		ContentType: resp.Header().Get("Content-Type"),
		LowQuality:  len(body) < minImageBytes,
	}, nil
}
