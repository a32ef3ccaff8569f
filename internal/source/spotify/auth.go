package spotify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net"
	"net/http"
	"net/url"
	"os/exec"
	"runtime"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultRedirectURL must be registered in the Spotify app settings.
	DefaultRedirectURL = "http://127.0.0.1:8889/callback"

	Scope = "user-read-currently-playing user-read-playback-state"
)

// AuthorizeURL is the page the user visits to grant access.
func AuthorizeURL(cfg Config, redirectURL, state string) string {
	accounts := cfg.AccountsURL
	if accounts == "" {
		accounts = DefaultAccountsURL
	}
	q := url.Values{
		"client_id":     {cfg.ClientID},
		"response_type": {"code"},
		"redirect_uri":  {redirectURL},
		"scope":         {Scope},
		"state":         {state},
	}
	return accounts + "/authorize?" + q.Encode()
}

type callbackResult struct {
	code string
	err  error
}

// AuthServer receives the authorization redirect on a local port.
type AuthServer struct {
	server   *http.Server
	listener net.Listener
	results  chan callbackResult
	done     chan struct{}
	state    string
}

// StartAuthServer listens on the host and port of redirectURL and waits
// for a callback carrying state.
func StartAuthServer(redirectURL, state string) (*AuthServer, error) {
	u, err := url.Parse(redirectURL)
	if err != nil {
		return nil, fmt.Errorf("parse redirect url: %w", err)
	}
	listener, err := net.Listen("tcp", u.Host)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", u.Host, err)
	}

	as := &AuthServer{
		listener: listener,
		results:  make(chan callbackResult, 1),
		done:     make(chan struct{}),
		state:    state,
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	mux := http.NewServeMux()
	mux.HandleFunc(path, as.handleCallback)
	as.server = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		_ = as.server.Serve(listener)
		close(as.done)
	}()
	return as, nil
}

func (as *AuthServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var res callbackResult
	switch {
	case q.Get("state") != as.state:
		res.err = errors.New("authorization state mismatch")
	case q.Get("error") != "":
		res.err = fmt.Errorf("authorization denied: %s", q.Get("error"))
	case q.Get("code") == "":
		res.err = errors.New("authorization callback without code")
	default:
		res.code = q.Get("code")
	}

	w.Header().Set("Content-Type", "text/html")
	title, msg := "Authorization Successful!", "You can close this window and return to playlog."
	if res.err != nil {
		w.WriteHeader(http.StatusBadRequest)
		title, msg = "Authorization Failed", html.EscapeString(res.err.Error())
	}
	fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><title>playlog - Spotify Authorization</title></head>
<body style="font-family: sans-serif; text-align: center; padding: 50px;">
<h1>%s</h1>
<p>%s</p>
</body>
</html>`, title, msg)

	select {
	case as.results <- res:
	default:
	}
}

// Wait blocks until the callback arrives or ctx ends.
func (as *AuthServer) Wait(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-as.results:
		return res.code, res.err
	}
}

func (as *AuthServer) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = as.server.Shutdown(ctx)
	<-as.done
}

// ExchangeCode trades an authorization code for tokens.
func ExchangeCode(ctx context.Context, cfg Config, code, redirectURL string) (refreshToken string, err error) {
	if cfg.AccountsURL == "" {
		cfg.AccountsURL = DefaultAccountsURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 8 * time.Second}
	}
	tok, err := requestToken(ctx, client, cfg, url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {redirectURL},
	})
	if err != nil {
		return "", err
	}
	if tok.RefreshToken == "" {
		return "", errors.New("token response without refresh token")
	}
	return tok.RefreshToken, nil
}

// Authorize runs the whole authorization-code flow: it prints the URL,
// tries to open a browser, waits for the redirect and saves the refresh
// token to cfg.Credentials.
func Authorize(ctx context.Context, cfg Config, redirectURL string, prompt func(url string)) error {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return errors.New("spotify client_id and client_secret are required")
	}
	if cfg.Credentials == nil {
		return errors.New("no credential store")
	}
	if redirectURL == "" {
		redirectURL = DefaultRedirectURL
	}

	state := uuid.NewString()
	srv, err := StartAuthServer(redirectURL, state)
	if err != nil {
		return err
	}
	defer srv.Shutdown()

	authURL := AuthorizeURL(cfg, redirectURL, state)
	if prompt != nil {
		prompt(authURL)
	}

	code, err := srv.Wait(ctx)
	if err != nil {
		return err
	}
	refresh, err := ExchangeCode(ctx, cfg, code, redirectURL)
	if err != nil {
		return fmt.Errorf("exchange code: %w", err)
	}
	if err := cfg.Credentials.SaveCredential(ctx, CredentialKey, refresh); err != nil {
		return fmt.Errorf("save refresh token: %w", err)
	}
	return nil
}

// OpenBrowser opens url in the default browser.
func OpenBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
	return cmd.Start()
}
