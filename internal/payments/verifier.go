package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// ErrInvalidSignature means the payment confirmation was not signed by the
// gateway. It is a hard reject: a bad signature is forged or corrupt, never
// transient, so callers must not retry.
var ErrInvalidSignature = errors.New("payment signature verification failed")

// Verifier checks that a payment completion callback genuinely originates from
// the payment gateway. The gateway signs orderID|paymentID with a shared
// secret; anyone who only observed the gateway order id cannot produce a valid
// signature.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Sign computes the hex-encoded HMAC-SHA256 signature the gateway is expected
// to produce for a completed payment. Exported for the gateway mock and tests.
func (v *Verifier) Sign(orderID, paymentID string) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify compares the supplied signature against the expected one in constant
// time and returns ErrInvalidSignature on any mismatch.
func (v *Verifier) Verify(orderID, paymentID, signature string) error {
	expected := v.Sign(orderID, paymentID)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrInvalidSignature
	}
	return nil
}
