// README: Firebase Admin SDK bootstrap; messaging client used for driver push offers.
package infra

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// NewMessaging initialises the Firebase Admin SDK from a service-account key
// file and returns the FCM client. The caller decides whether push is
// configured at all; an empty credentials path is an error here.
func NewMessaging(ctx context.Context, credentialsFile string) (*messaging.Client, error) {
	if credentialsFile == "" {
		return nil, fmt.Errorf("firebase credentials file not configured")
	}
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("initialising firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialising firebase messaging client: %w", err)
	}
	return client, nil
}
