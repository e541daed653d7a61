package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"github.com/gofiber/fiber/v3"
	"github.com/matchops/fixturecast/app/dto"
)

// WebhookSignatureHeader carries the hex-encoded HMAC-SHA256 of the raw body
const WebhookSignatureHeader = "X-Webhook-Signature"

// WebhookAuth verifies the HMAC signature the platform attaches to delivery
// event batches. The comparison is constant-time.
func WebhookAuth(signingSecret string) fiber.Handler {
	secret := []byte(signingSecret)
	return func(c fiber.Ctx) error {
		provided := c.Get(WebhookSignatureHeader)
		if provided == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
				Success: false,
				Message: "Webhook signature is required",
				Error: dto.ErrorDetail{
					Code: "MISSING_WEBHOOK_SIGNATURE",
				},
			})
		}

		mac := hmac.New(sha256.New, secret)
		mac.Write(c.Body())
		expected := hex.EncodeToString(mac.Sum(nil))

		if !hmac.Equal([]byte(provided), []byte(expected)) {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
				Success: false,
				Message: "Webhook signature verification failed",
				Error: dto.ErrorDetail{
					Code: "INVALID_WEBHOOK_SIGNATURE",
				},
			})
		}

		return c.Next()
	}
}
