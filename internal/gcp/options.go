// Package gcp builds client options for Google Cloud REST services.
package gcp

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"

	"github.com/teslashibe/go-parley/internal/httpc"
)

// CloudPlatformScope covers Speech-to-Text and Text-to-Speech.
const CloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// Auth selects how requests are authenticated.
// APIKey wins over CredentialsFile, which wins over application default
// credentials.
type Auth struct {
	APIKey          string
	CredentialsFile string
	Endpoint        string // overrides the service base URL, e.g. for tests
	Timeout         time.Duration
}

// ClientOptions returns options for a google.golang.org/api service constructor.
func ClientOptions(ctx context.Context, auth Auth, scopes ...string) ([]option.ClientOption, error) {
	if len(scopes) == 0 {
		scopes = []string{CloudPlatformScope}
	}

	var opts []option.ClientOption
	if auth.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(auth.Endpoint))
	}

	switch {
	case auth.APIKey != "":
		// An HTTP client option would override the key, so leave transport
		// construction to the library.
		opts = append(opts, option.WithAPIKey(auth.APIKey))

	case auth.CredentialsFile != "":
		data, err := os.ReadFile(auth.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read credentials file: %w", err)
		}
		conf, err := google.JWTConfigFromJSON(data, scopes...)
		if err != nil {
			return nil, fmt.Errorf("parse service account: %w", err)
		}
		base := context.WithValue(ctx, oauth2.HTTPClient, httpc.NewClient(auth.Timeout))
		opts = append(opts, option.WithHTTPClient(oauth2.NewClient(base, conf.TokenSource(base))))

	default:
		client, err := google.DefaultClient(ctx, scopes...)
		if err != nil {
			return nil, fmt.Errorf("application default credentials: %w", err)
		}
		opts = append(opts, option.WithHTTPClient(client))
	}

	return opts, nil
}
