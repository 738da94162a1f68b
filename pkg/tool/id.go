package tool

import "github.com/google/uuid"

func GenerateUUIDV7() string {
	return uuid.Must(uuid.NewV7()).String()
}

// GenerateReceiptID returns a short receipt reference for gateway orders.
// Razorpay caps receipts at 40 characters, so a bare V4 UUID fits.
func GenerateReceiptID() string {
	return "rcpt_" + uuid.NewString()[:30]
}
