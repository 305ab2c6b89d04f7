package mail

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// ErrNeedsAuth signals that the session has no usable mail authorization;
// the HTTP layer converts it into a 401 with a needs_auth flag so the
// frontend can restart the OAuth flow.
var ErrNeedsAuth = errors.New("mail: account not authorized")

// Scopes requested from the mail provider: read and send.
var scopes = []string{
	gmail.GmailReadonlyScope,
	gmail.GmailSendScope,
}

// Connector runs the OAuth authorization-code flow for the mail provider.
type Connector struct {
	config *oauth2.Config
}

// NewConnector creates a connector for the given OAuth application.
// redirectURL is the absolute callback endpoint of this server.
func NewConnector(clientID, clientSecret, redirectURL string) *Connector {
	return &Connector{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     google.Endpoint,
			RedirectURL:  redirectURL,
			Scopes:       scopes,
		},
	}
}

// AuthURL returns the provider authorization URL bound to the given state
// nonce. Offline access is requested so a refresh token is issued.
func (c *Connector) AuthURL(state string) string {
	return c.config.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
	)
}

// Exchange trades an authorization code for a token.
func (c *Connector) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := c.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange auth code: %w", err)
	}
	return token, nil
}

// httpClient returns an authenticated HTTP client plus the possibly
// refreshed token, so the caller can write the refresh back to the session.
// An unrefreshable token maps to ErrNeedsAuth.
func (c *Connector) httpClient(ctx context.Context, token *oauth2.Token) (*http.Client, *oauth2.Token, error) {
	if token == nil {
		return nil, nil, ErrNeedsAuth
	}

	ts := c.config.TokenSource(ctx, token)
	fresh, err := ts.Token()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrNeedsAuth, err)
	}
	return oauth2.NewClient(ctx, oauth2.ReuseTokenSource(fresh, ts)), fresh, nil
}

// service builds a Gmail service for the session token.
func (c *Connector) service(ctx context.Context, token *oauth2.Token) (*gmail.Service, *oauth2.Token, error) {
	client, fresh, err := c.httpClient(ctx, token)
	if err != nil {
		return nil, nil, err
	}

	svc, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create mail service: %w", err)
	}
	return svc, fresh, nil
}

// Profile returns the email address of the authorized account.
func (c *Connector) Profile(ctx context.Context, token *oauth2.Token) (string, *oauth2.Token, error) {
	svc, fresh, err := c.service(ctx, token)
	if err != nil {
		return "", nil, err
	}

	profile, err := svc.Users.GetProfile("me").Do()
	if err != nil {
		return "", fresh, fmt.Errorf("failed to fetch profile: %w", err)
	}
	return profile.EmailAddress, fresh, nil
}
