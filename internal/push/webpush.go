package push

import (
	"fmt"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/convoapp/convo/internal/types"
)

const defaultTTL = 60

// WebPushTransport sends notifications over the Web Push protocol with VAPID
// authentication.
type WebPushTransport struct {
	subscriber      string
	vapidPublicKey  string
	vapidPrivateKey string
}

func NewWebPushTransport(subscriber, vapidPublicKey, vapidPrivateKey string) *WebPushTransport {
	return &WebPushTransport{
		subscriber:      subscriber,
		vapidPublicKey:  vapidPublicKey,
		vapidPrivateKey: vapidPrivateKey,
	}
}

func (t *WebPushTransport) SendPush(reg types.PushRegistration, payload []byte) error {
	sub := &webpush.Subscription{
		Endpoint: reg.Endpoint,
		Keys: webpush.Keys{
			P256dh: reg.P256dhKey,
			Auth:   reg.AuthSecret,
		},
	}

	resp, err := webpush.SendNotification(payload, sub, &webpush.Options{
		Subscriber:      t.subscriber,
		VAPIDPublicKey:  t.vapidPublicKey,
		VAPIDPrivateKey: t.vapidPrivateKey,
		TTL:             defaultTTL,
	})
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("push endpoint returned status %d", resp.StatusCode)
	}

	return nil
}
