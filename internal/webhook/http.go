package webhook

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// Secrets holds the two independent signature secrets Webhook Ingest
// accepts — either is sufficient.
type Secrets struct {
	ProxySecret    string // X-Use60-Signature scheme
	ProviderSecret string // x-justcall-signature scheme
}

// TelephonyWebhookConfig wires the Handler and secrets into a fiber
// route.
type TelephonyWebhookConfig struct {
	Handler    *Handler
	Secrets    Secrets
	WebhookURL string // the externally-visible URL this endpoint is registered at, for the provider-native signature
	Parse      func(rawBody []byte, token string) (orgID, callID string, event CallEvent, applicable bool, reason string, err error)
}

// FiberHandler returns the fiber.Handler for POST /webhook/telephony. It verifies
// one of the two accepted signature schemes, enforces the ±10min
// anti-replay window, normalizes the payload, and runs the ordered side
// effects — returning 2xx for any business-level not-applicable event
// so upstream retry storms don't occur.
func (cfg TelephonyWebhookConfig) FiberHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		rawBody := c.Body()

		verified := false

		if ts := c.Get("X-Use60-Timestamp"); ts != "" {
			sig := trimSignaturePrefix(c.Get("X-Use60-Signature"))
			if sig != "" && WithinReplayWindow(time.Now(), ts) &&
				VerifyProxySignature(cfg.Secrets.ProxySecret, ts, string(rawBody), sig) {
				verified = true
			} else if sig != "" && !WithinReplayWindow(time.Now(), ts) {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Stale webhook timestamp"})
			}
		}

		if !verified {
			if ts := c.Get("x-justcall-request-timestamp"); ts != "" {
				sig := c.Get("x-justcall-signature")
				eventType := c.Get("x-justcall-event-type")
				if !WithinReplayWindow(time.Now(), ts) {
					return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Stale webhook timestamp"})
				}
				if sig != "" && VerifyProviderSignature(cfg.Secrets.ProviderSecret, cfg.WebhookURL, eventType, ts, sig) {
					verified = true
				}
			}
		}

		if !verified {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid signature"})
		}

		orgID, callID, event, applicable, reason, err := cfg.Parse(rawBody, c.Query("token"))
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		if !applicable {
			out := HandleNotApplicable(reason)
			return c.Status(out.StatusCode).JSON(fiber.Map{"ignored": true, "reason": out.Reason})
		}

		out := cfg.Handler.HandleCall(c.UserContext(), orgID, callID, event)
		if out.Err != nil {
			return c.Status(out.StatusCode).JSON(fiber.Map{"error": out.Err.Error()})
		}
		return c.SendStatus(out.StatusCode)
	}
}

func trimSignaturePrefix(header string) string {
	const prefix = "v1="
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return ""
}
