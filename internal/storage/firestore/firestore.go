// Package firestore implements the remote cart store on Cloud
// Firestore, keeping each user's cart at users/{uid}/cart/active.
package firestore

import (
	"context"
	"fmt"
	"os"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const envEmulatorHost = "FIRESTORE_EMULATOR_HOST"

// ClientConfig selects the Firestore project and credentials.
type ClientConfig struct {
	ProjectID       string
	CredentialsFile string
	// EmulatorHost, when set, points the client at a local emulator
	// with authentication disabled.
	EmulatorHost string
}

// NewClient creates a Firestore client for the configured project.
func NewClient(ctx context.Context, cfg ClientConfig) (*firestore.Client, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("firestore project id is required")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.EmulatorHost != "" {
		if os.Getenv(envEmulatorHost) == "" {
			_ = os.Setenv(envEmulatorHost, cfg.EmulatorHost)
		}
		opts = append(opts,
			option.WithoutAuthentication(),
			option.WithEndpoint(cfg.EmulatorHost),
			option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
	}

	client, err := firestore.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}
	return client, nil
}
