// README: Firebase Cloud Messaging pusher.
package dispatch

import (
	"context"

	"firebase.google.com/go/v4/messaging"
)

type FCMPusher struct {
	client *messaging.Client
}

func NewFCMPusher(client *messaging.Client) *FCMPusher {
	return &FCMPusher{client: client}
}

func (f *FCMPusher) Push(ctx context.Context, token string, n Notification) error {
	_, err := f.client.Send(ctx, &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: n.Title,
			Body:  n.Body,
		},
		Data: n.Data,
	})
	return err
}
