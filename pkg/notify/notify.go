/*
Package notify implements the push-notification sink: when a task has a
PushNotificationConfig on file, every terminal or input-required event
is also POSTed to the configured webhook URL, bearer-signed the same
way pkg/auth.Service.GenerateToken signs access tokens (HS256 via
golang-jwt/jwt/v5), generalizing the teacher's deleted pkg/push/service.go
retry-queue shape into a small bounded-retry sender built on fiber's
HTTP client instead of net/http, matching the rest of the transport
layer's stack.
*/
package notify

import (
	"time"

	"github.com/a2aproto/taskengine/pkg/a2a"
	"github.com/charmbracelet/log"
	fiberClient "github.com/gofiber/fiber/v3/client"
	"github.com/golang-jwt/jwt/v5"
)

const (
	maxAttempts  = 3
	retryBackoff = 500 * time.Millisecond
)

// Sink sends webhook push notifications for task events.
type Sink struct {
	conn       *fiberClient.Client
	signingKey []byte
}

func New(signingKey []byte) *Sink {
	return &Sink{
		conn:       fiberClient.New(),
		signingKey: signingKey,
	}
}

// payload is the body POSTed to a subscriber's webhook.
type payload struct {
	TaskID string    `json:"taskId"`
	Event  a2a.Event `json:"event"`
}

// Notify delivers evt to cfg.URL, signing a bearer token carrying the
// task id as its subject. Delivery is best-effort: failures are logged
// and retried up to maxAttempts with a wait that grows by retryBackoff
// after each failed attempt, then dropped —
// spec.md does not mandate durable redelivery, only best-effort push.
func (s *Sink) Notify(cfg a2a.PushNotificationConfig, taskID string, evt a2a.Event) {
	token, err := s.sign(taskID)
	if err != nil {
		log.Error("notify: failed to sign push token", "task", taskID, "err", err)
		return
	}

	headers := map[string]string{
		"Content-Type":  "application/json",
		"Authorization": "Bearer " + token,
	}
	if cfg.Token != nil {
		headers["X-A2A-Notification-Token"] = *cfg.Token
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		_, err := s.conn.Post(cfg.URL, fiberClient.Config{
			Header: headers,
			Body:   payload{TaskID: taskID, Event: evt},
		})
		if err == nil {
			return
		}
		lastErr = err
		time.Sleep(retryBackoff * time.Duration(attempt+1))
	}

	log.Warn("notify: giving up delivering push notification", "task", taskID, "url", cfg.URL, "err", lastErr)
}

func (s *Sink) sign(taskID string) (string, error) {
	claims := jwt.MapClaims{
		"sub": taskID,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(5 * time.Minute).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.signingKey)
}
