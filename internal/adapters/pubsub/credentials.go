package pubsub

import (
	"fmt"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// PublisherAudience scopes self-signed JWTs to the Pub/Sub publisher API
const PublisherAudience = "https://pubsub.googleapis.com/google.pubsub.v1.Publisher"

// LoadTokenSource reads a service-account key file and mints self-signed
// JWTs for the publisher audience. No token exchange with the OAuth server happens.
func LoadTokenSource(path string) (oauth2.TokenSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}

	ts, err := google.JWTAccessTokenSourceFromJSON(data, PublisherAudience)
	if err != nil {
		return nil, fmt.Errorf("failed to parse service account key: %w", err)
	}

	return ts, nil
}
