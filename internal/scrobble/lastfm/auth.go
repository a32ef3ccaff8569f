package lastfm

import (
	"context"
	"errors"
	"fmt"

	"github.com/shkh/lastfm-go/lastfm"
)

// Credentials stores the session key. store.Store implements it.
type Credentials interface {
	SaveCredential(ctx context.Context, service, value string) error
}

// AuthURL is where the user approves a desktop auth token.
func AuthURL(apiKey, token string) string {
	return fmt.Sprintf("https://www.last.fm/api/auth/?api_key=%s&token=%s", apiKey, token)
}

// Authorize runs the desktop auth flow: it fetches a token, shows the
// approval URL through prompt, waits for confirm to return, then exchanges
// the token for a session key and saves it.
func Authorize(ctx context.Context, apiKey, apiSecret string, creds Credentials, prompt func(url string), confirm func() error) error {
	if apiKey == "" || apiSecret == "" {
		return errors.New("lastfm api_key and api_secret are required")
	}
	api := lastfm.New(apiKey, apiSecret)
	token, err := api.GetToken()
	if err != nil {
		return fmt.Errorf("get token: %w", err)
	}
	prompt(AuthURL(apiKey, token))
	if err := confirm(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := api.LoginWithToken(token); err != nil {
		return fmt.Errorf("get session: %w", err)
	}
	if err := creds.SaveCredential(ctx, CredentialKey, api.GetSessionKey()); err != nil {
		return fmt.Errorf("save session key: %w", err)
	}
	return nil
}
