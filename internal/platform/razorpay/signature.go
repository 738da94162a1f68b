package razorpay

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/brightmoor/memberpay/pkg/apperr"
)

// The gateway signs client-side payment claims with HMAC-SHA256 over
// "<order_id>|<payment_id>" using the key secret, and webhook deliveries over
// the raw request body using the webhook secret. Both checks fail closed: any
// mismatch is apperr.ErrAuth and an empty secret is apperr.ErrUnavailable,
// never a silent pass.

func hmacHex(secret string, signed []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(signed)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyPaymentSignature checks a client-submitted claim signature.
func (c *Client) VerifyPaymentSignature(orderID, paymentID, signature string) error {
	return verify(c.cfg.KeySecret, []byte(orderID+"|"+paymentID), signature)
}

// VerifyWebhookSignature checks the signature header against the exact bytes
// of the delivered body.
func (c *Client) VerifyWebhookSignature(body []byte, signature string) error {
	return verify(c.cfg.WebhookSecret, body, signature)
}

func verify(secret string, signed []byte, signature string) error {
	if secret == "" {
		return fmt.Errorf("%w: signing secret not set", apperr.ErrUnavailable)
	}
	if signature == "" {
		return fmt.Errorf("%w: signature missing", apperr.ErrAuth)
	}
	expected := hmacHex(secret, signed)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return apperr.ErrAuth
	}
	return nil
}
