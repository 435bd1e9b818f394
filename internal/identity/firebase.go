package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"oceanstella/api/internal/config"
)

var (
	ErrDisabled     = errors.New("federated sign-in is not configured")
	ErrInvalidToken = errors.New("invalid identity token")
)

// ExternalIdentity is what a trusted provider asserts about the caller.
type ExternalIdentity struct {
	UID     string
	Email   string
	Name    string
	Picture string
}

type Verifier interface {
	Verify(ctx context.Context, idToken string) (ExternalIdentity, error)
}

type tokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// FirebaseVerifier checks Firebase ID tokens issued for the configured project.
type FirebaseVerifier struct {
	client tokenVerifier
}

func NewFirebaseVerifier(ctx context.Context, cfg config.FirebaseConfig) (*FirebaseVerifier, error) {
	creds, err := json.Marshal(map[string]string{
		"type":         "service_account",
		"project_id":   cfg.ProjectID,
		"client_email": cfg.ClientEmail,
		"private_key":  cfg.PrivateKey,
		"token_uri":    "https://oauth2.googleapis.com/token",
	})
	if err != nil {
		return nil, fmt.Errorf("firebase credentials: %w", err)
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, option.WithCredentialsJSON(creds))
	if err != nil {
		return nil, fmt.Errorf("firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase auth: %w", err)
	}
	return &FirebaseVerifier{client: client}, nil
}

func (v *FirebaseVerifier) Verify(ctx context.Context, idToken string) (ExternalIdentity, error) {
	token, err := v.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return ExternalIdentity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return ExternalIdentity{
		UID:     token.UID,
		Email:   claim(token.Claims, "email"),
		Name:    claim(token.Claims, "name"),
		Picture: claim(token.Claims, "picture"),
	}, nil
}

func claim(claims map[string]any, key string) string {
	value, _ := claims[key].(string)
	return value
}

// Disabled rejects every token. It stands in when no provider credentials
// are configured.
type Disabled struct{}

func (Disabled) Verify(context.Context, string) (ExternalIdentity, error) {
	return ExternalIdentity{}, ErrDisabled
}
