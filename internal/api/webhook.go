package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/crewledger/crewledger/internal/api/respond"
	"github.com/crewledger/crewledger/internal/model"
)

// handlerTimeout bounds one webhook delivery end to end. The gateway gives
// up after 15 seconds, so there is no point working past that.
const handlerTimeout = 14 * time.Second

// MessageHandler is the pipeline entry point the webhook dispatches into.
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg model.InboundMessage) (string, error)
}

// WebhookHandler terminates inbound messaging-gateway callbacks.
type WebhookHandler struct {
	svc MessageHandler
	log zerolog.Logger
}

func NewWebhookHandler(svc MessageHandler, log zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{svc: svc, log: log}
}

// HandleInbound handles POST /webhook/sms. The gateway sends an
// application/x-www-form-urlencoded body; the reply is TwiML XML. An empty
// <Response/> acknowledges without replying.
func (h *WebhookHandler) HandleInbound(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respond.WriteError(w, http.StatusBadRequest, "malformed form body")
		return
	}

	msg := parseInbound(r)
	if msg.From == "" {
		respond.WriteError(w, http.StatusBadRequest, "From is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
	defer cancel()

	text, err := h.svc.HandleMessage(ctx, msg)
	if err != nil {
		h.log.Error().Err(err).Str("message_id", msg.MessageID).Msg("message handling failed")
		// Still 200: a 5xx makes the gateway redeliver a message we have
		// already marked processed.
		respond.WriteTwiML(w, "")
		return
	}
	respond.WriteTwiML(w, text)
}

// parseInbound maps the gateway's form fields onto the pipeline's message
// shape. Media comes as NumMedia plus MediaUrl0..N / MediaContentType0..N.
func parseInbound(r *http.Request) model.InboundMessage {
	msg := model.InboundMessage{
		MessageID: r.PostFormValue("MessageSid"),
		From:      r.PostFormValue("From"),
		To:        r.PostFormValue("To"),
		Body:      r.PostFormValue("Body"),
	}
	n, err := strconv.Atoi(r.PostFormValue("NumMedia"))
	if err != nil || n <= 0 {
		return msg
	}
	for i := 0; i < n; i++ {
		url := r.PostFormValue(fmt.Sprintf("MediaUrl%d", i))
		if url == "" {
			continue
		}
		msg.Attachments = append(msg.Attachments, model.Attachment{
			URL:         url,
			ContentType: r.PostFormValue(fmt.Sprintf("MediaContentType%d", i)),
		})
	}
	return msg
}
