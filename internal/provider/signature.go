package provider

import (
	"net/url"

	"github.com/twilio/twilio-go/client"
)

// SignatureHeader carries the request signature on provider callbacks.
const SignatureHeader = "X-Twilio-Signature"

// ValidateSignature reports whether signature matches a callback posted to
// fullURL with params. Status callbacks carry one value per field, so only
// the first value of each is signed. An empty token or signature never
// validates.
func ValidateSignature(authToken, fullURL string, params url.Values, signature string) bool {
	if authToken == "" || signature == "" {
		return false
	}
	flat := make(map[string]string, len(params))
	for k := range params {
		flat[k] = params.Get(k)
	}
	rv := client.NewRequestValidator(authToken)
	return rv.Validate(fullURL, flat, signature)
}
