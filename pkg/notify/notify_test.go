package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/a2aproto/taskengine/pkg/a2a"
	"github.com/golang-jwt/jwt/v5"
	. "github.com/smartystreets/goconvey/convey"
)

func TestNotifyDeliversSignedWebhook(t *testing.T) {
	Convey("Given a webhook server and a sink", t, func() {
		var receivedAuth string
		var receivedBody payload

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			receivedAuth = r.Header.Get("Authorization")
			So(r.Header.Get("Content-Type"), ShouldEqual, "application/json")
			So(json.NewDecoder(r.Body).Decode(&receivedBody), ShouldBeNil)
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		signingKey := []byte("test-signing-key")
		sink := New(signingKey)
		status := a2a.TaskStatus{State: a2a.TaskStateCompleted}
		evt := a2a.NewStatusEvent("task-1", status, true)
		cfg := a2a.PushNotificationConfig{URL: server.URL}

		Convey("Notify posts a bearer-signed payload carrying the event", func() {
			sink.Notify(cfg, "task-1", evt)

			So(receivedAuth, ShouldStartWith, "Bearer ")
			token := strings.TrimPrefix(receivedAuth, "Bearer ")

			parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
				return signingKey, nil
			})
			So(err, ShouldBeNil)
			claims, ok := parsed.Claims.(jwt.MapClaims)
			So(ok, ShouldBeTrue)
			So(claims["sub"], ShouldEqual, "task-1")

			So(receivedBody.TaskID, ShouldEqual, "task-1")
			So(receivedBody.Event.Kind, ShouldEqual, a2a.EventKindStatus)
			So(receivedBody.Event.Final, ShouldBeTrue)
		})

		Convey("A notification-token subscriber header is forwarded verbatim", func() {
			tok := "subscriber-secret"
			cfgWithToken := a2a.PushNotificationConfig{URL: server.URL, Token: &tok}

			var receivedSubToken string
			srv2 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				receivedSubToken = r.Header.Get("X-A2A-Notification-Token")
				w.WriteHeader(http.StatusOK)
			}))
			defer srv2.Close()
			cfgWithToken.URL = srv2.URL

			sink.Notify(cfgWithToken, "task-1", evt)
			So(receivedSubToken, ShouldEqual, tok)
		})
	})
}

func TestNotifyGivesUpAfterMaxAttempts(t *testing.T) {
	Convey("Given a webhook URL nothing is listening on", t, func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		unreachableURL := server.URL
		server.Close() // connections to this address now fail outright

		sink := New([]byte("key"))
		cfg := a2a.PushNotificationConfig{URL: unreachableURL}
		status := a2a.TaskStatus{State: a2a.TaskStateFailed}
		evt := a2a.NewStatusEvent("task-2", status, true)

		Convey("Notify retries up to maxAttempts then drops the delivery without blocking forever", func() {
			So(func() { sink.Notify(cfg, "task-2", evt) }, ShouldNotPanic)
		})
	})
}
