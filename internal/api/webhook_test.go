package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewledger/crewledger/internal/model"
)

type stubHandler struct {
	got   model.InboundMessage
	reply string
	err   error
}

func (s *stubHandler) HandleMessage(ctx context.Context, msg model.InboundMessage) (string, error) {
	s.got = msg
	return s.reply, s.err
}

type stubPinger struct{ err error }

func (s *stubPinger) HealthPing(ctx context.Context) error { return s.err }

func postForm(t *testing.T, router http.Handler, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", "/webhook/sms", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestWebhookParsesFormAndRepliesTwiML(t *testing.T) {
	stub := &stubHandler{reply: "Got it, Mike!"}
	router := NewRouter(stub, &stubPinger{}, zerolog.Nop())

	rr := postForm(t, router, url.Values{
		"MessageSid":        {"SM123"},
		"From":              {"+14075551234"},
		"To":                {"+18885550000"},
		"Body":              {"Sparrow Lane"},
		"NumMedia":          {"2"},
		"MediaUrl0":         {"https://gateway.example/media/a"},
		"MediaContentType0": {"image/jpeg"},
		"MediaUrl1":         {"https://gateway.example/media/b"},
		"MediaContentType1": {"image/png"},
	})

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/xml", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Body.String(), "<Message>Got it, Mike!</Message>")

	assert.Equal(t, "SM123", stub.got.MessageID)
	assert.Equal(t, "+14075551234", stub.got.From)
	assert.Equal(t, "Sparrow Lane", stub.got.Body)
	require.Len(t, stub.got.Attachments, 2)
	assert.Equal(t, "https://gateway.example/media/a", stub.got.Attachments[0].URL)
	assert.Equal(t, "image/png", stub.got.Attachments[1].ContentType)
}

func TestWebhookSilenceIsEmptyResponse(t *testing.T) {
	stub := &stubHandler{reply: ""}
	router := NewRouter(stub, &stubPinger{}, zerolog.Nop())

	rr := postForm(t, router, url.Values{
		"MessageSid": {"SM124"},
		"From":       {"+19995550000"},
		"Body":       {"hello?"},
	})

	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotContains(t, rr.Body.String(), "<Message>")
	assert.Contains(t, rr.Body.String(), "<Response")
}

func TestWebhookHandlerErrorStillAcknowledges(t *testing.T) {
	stub := &stubHandler{err: errors.New("datastore down")}
	router := NewRouter(stub, &stubPinger{}, zerolog.Nop())

	rr := postForm(t, router, url.Values{
		"MessageSid": {"SM125"},
		"From":       {"+14075551234"},
		"Body":       {"hi"},
	})

	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotContains(t, rr.Body.String(), "<Message>")
}

func TestWebhookMissingFromIsBadRequest(t *testing.T) {
	stub := &stubHandler{}
	router := NewRouter(stub, &stubPinger{}, zerolog.Nop())

	rr := postForm(t, router, url.Values{"Body": {"hi"}})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestWebhookNoMedia(t *testing.T) {
	stub := &stubHandler{reply: "x"}
	router := NewRouter(stub, &stubPinger{}, zerolog.Nop())

	postForm(t, router, url.Values{
		"MessageSid": {"SM126"},
		"From":       {"+14075551234"},
		"Body":       {"I lost the receipt"},
		"NumMedia":   {"0"},
	})
	assert.Empty(t, stub.got.Attachments)
}

func TestHealthEndpoint(t *testing.T) {
	router := NewRouter(&stubHandler{}, &stubPinger{}, zerolog.Nop())

	req := httptest.NewRequest("GET", "/v0/health", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"healthy"`)
}

func TestHealthEndpointUnhealthyStore(t *testing.T) {
	router := NewRouter(&stubHandler{}, &stubPinger{err: errors.New("no db")}, zerolog.Nop())

	req := httptest.NewRequest("GET", "/v0/health", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"unhealthy"`)
}
