// Package googleauth builds the OAuth2 configuration shared by the Calendar and
// Sheets clients and the refresh-token bootstrap flow.
package googleauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/sheets/v4"
)

// Scopes are the permissions the agent needs: lead sheet access and calendar
// read/write.
var Scopes = []string{
	sheets.SpreadsheetsScope,
	calendar.CalendarScope,
	calendar.CalendarEventsScope,
}

var (
	// ErrClientCredentialsMissing is returned when client ID or secret is unset.
	ErrClientCredentialsMissing = errors.New("google client ID and secret must be provided")
	// ErrRefreshTokenMissing is returned when a token source is requested without a refresh token.
	ErrRefreshTokenMissing = errors.New("GOOGLE_REFRESH_TOKEN not set")
)

// Opts holds Google OAuth2 client settings.
type Opts struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	RefreshToken string
}

// Option defines a configuration option for the OAuth2 helper.
type Option func(*Opts)

// WithClientID sets the OAuth2 client ID.
func WithClientID(id string) Option {
	return func(o *Opts) { o.ClientID = id }
}

// WithClientSecret sets the OAuth2 client secret.
func WithClientSecret(secret string) Option {
	return func(o *Opts) { o.ClientSecret = secret }
}

// WithRedirectURL sets the OAuth2 redirect URL.
func WithRedirectURL(url string) Option {
	return func(o *Opts) { o.RedirectURL = url }
}

// WithRefreshToken sets the long-lived refresh token.
func WithRefreshToken(token string) Option {
	return func(o *Opts) { o.RefreshToken = token }
}

// Auth wraps an oauth2.Config plus the stored refresh token.
type Auth struct {
	config       *oauth2.Config
	refreshToken string
}

// New creates an Auth, falling back to GOOGLE_CLIENT_ID, GOOGLE_CLIENT_SECRET,
// GOOGLE_REDIRECT_URI and GOOGLE_REFRESH_TOKEN for unset options.
func New(opts ...Option) (*Auth, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.ClientID == "" {
		cfg.ClientID = os.Getenv("GOOGLE_CLIENT_ID")
	}
	if cfg.ClientSecret == "" {
		cfg.ClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
	}
	if cfg.RedirectURL == "" {
		cfg.RedirectURL = os.Getenv("GOOGLE_REDIRECT_URI")
	}
	if cfg.RefreshToken == "" {
		cfg.RefreshToken = os.Getenv("GOOGLE_REFRESH_TOKEN")
	}
	slog.Debug("googleauth.New: config loaded",
		"ClientID_set", cfg.ClientID != "",
		"ClientSecret_set", cfg.ClientSecret != "",
		"RedirectURL", cfg.RedirectURL,
		"RefreshToken_set", cfg.RefreshToken != "")

	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, ErrClientCredentialsMissing
	}

	return &Auth{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     google.Endpoint,
			Scopes:       Scopes,
		},
		refreshToken: cfg.RefreshToken,
	}, nil
}

// TokenSource returns an auto-refreshing token source backed by the refresh token.
func (a *Auth) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	if a.refreshToken == "" {
		return nil, ErrRefreshTokenMissing
	}
	return a.config.TokenSource(ctx, &oauth2.Token{RefreshToken: a.refreshToken}), nil
}

// AuthCodeURL returns the consent URL. Offline access with forced consent
// makes Google issue a refresh token every time.
func (a *Auth) AuthCodeURL(state string) string {
	return a.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for tokens.
func (a *Auth) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := a.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("oauth code exchange failed: %w", err)
	}
	if tok.RefreshToken == "" {
		slog.Warn("Auth.Exchange: no refresh token returned; revoke prior consent and retry")
	}
	return tok, nil
}
