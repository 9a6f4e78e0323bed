package identity

import (
	"context"
	"time"

	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"
	"github.com/go-faster/errors"
	"google.golang.org/api/option"
)

const defaultVerifyTimeout = 5 * time.Second

// FirebaseVerifier validates Firebase ID tokens through the Admin SDK.
type FirebaseVerifier struct {
	client  *firebaseauth.Client
	timeout time.Duration
}

// FirebaseOption customises FirebaseVerifier instances.
type FirebaseOption func(*FirebaseVerifier)

// WithVerifyTimeout overrides the timeout applied to Admin SDK calls.
func WithVerifyTimeout(d time.Duration) FirebaseOption {
	return func(v *FirebaseVerifier) {
		if d > 0 {
			v.timeout = d
		}
	}
}

// NewFirebaseVerifier initialises the Firebase Admin SDK for the given
// project. CredentialsFile may be empty, in which case application
// default credentials are used.
func NewFirebaseVerifier(ctx context.Context, projectID, credentialsFile string, opts ...FirebaseOption) (*FirebaseVerifier, error) {
	if projectID == "" {
		return nil, errors.New("firebase project id is required")
	}

	var clientOpts []option.ClientOption
	if credentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, clientOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "initialise firebase app")
	}

	client, err := app.Auth(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "initialise firebase auth client")
	}

	v := &FirebaseVerifier{client: client, timeout: defaultVerifyTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v, nil
}

// Verify checks the ID token signature and expiry and extracts the
// principal. The admin flag comes from the "role" custom claim set on
// staff accounts.
func (v *FirebaseVerifier) Verify(ctx context.Context, idToken string) (*TokenInfo, error) {
	if v == nil || v.client == nil {
		return nil, errors.New("firebase verifier not initialised")
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	token, err := v.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, errors.Wrap(err, "verify id token")
	}

	info := &TokenInfo{UserID: token.UID}
	if email, ok := token.Claims["email"].(string); ok {
		info.Email = email
	}
	if name, ok := token.Claims["name"].(string); ok {
		info.Name = name
	}
	if role, ok := token.Claims["role"].(string); ok {
		info.Admin = role == "admin"
	}
	return info, nil
}
