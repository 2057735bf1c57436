// Provider webhook handler.
//
//   - POST /webhooks/sms/status   (delivery status callback, form-encoded)
//
// The callback is authenticated by its signature, computed by the provider
// over the exact public URL it posted to; WebhookURL pins that URL when the
// service sits behind a proxy that rewrites host or scheme.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-group-notify/internal/provider"
	"github.com/tbourn/go-group-notify/internal/services"
	"github.com/tbourn/go-group-notify/internal/sysutil"
)

// SMSStatus godoc
// @ID          smsStatusCallback
// @Summary     Delivery status callback
// @Description Applies a signed provider status callback to the matching delivery record. Replays and out-of-order callbacks are accepted and reported with applied=false.
// @Tags        Webhooks
// @Accept      x-www-form-urlencoded
// @Produce     json
//
// @Param       X-Twilio-Signature  header    string  true   "Request signature"
// @Param       MessageSid          formData  string  true   "Provider message reference"
// @Param       MessageStatus       formData  string  true   "Provider status"  Enums(queued, sending, sent, delivered, undelivered, failed)
// @Param       ErrorCode           formData  string  false  "Provider error code"
//
// @Success     200  {object}  services.CallbackResult
// @Failure     400  {object}  handlers.ErrorResponse  "malformed_callback"
// @Failure     403  {object}  handlers.ErrorResponse  "invalid_signature"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /webhooks/sms/status [post]
func (h *Handlers) SMSStatus(c *gin.Context) {
	if err := c.Request.ParseForm(); err != nil {
		fail(c, http.StatusBadRequest, string(services.KindMalformedCallback), "unreadable form body")
		return
	}
	res, err := h.reconciler.ApplyCallback(
		c.Request.Context(),
		c.Request.PostForm,
		h.callbackURL(c),
		c.GetHeader(provider.SignatureHeader),
	)
	if err != nil {
		h.failService(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, res)
}

// callbackURL returns the URL the provider signed: the configured public
// URL, or one rebuilt from the request, plus the raw query string.
func (h *Handlers) callbackURL(c *gin.Context) string {
	base := h.webhookURL
	if base == "" {
		scheme := "http"
		if c.Request.TLS != nil || strings.EqualFold(c.GetHeader("X-Forwarded-Proto"), "https") {
			scheme = "https"
		}
		host := sysutil.FirstNonEmpty(c.GetHeader("X-Forwarded-Host"), c.Request.Host)
		base = scheme + "://" + host + c.Request.URL.Path
	}
	if q := c.Request.URL.RawQuery; q != "" {
		base += "?" + q
	}
	return base
}
