package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const (
	// ClientSecretsFile is the OAuth desktop client downloaded from the Google
	// Cloud console, looked up in the config directory.
	ClientSecretsFile = "client_secret.json"

	// TokenFile caches the user's access and refresh token in the config directory.
	TokenFile = "token.json"

	// LocalhostAuthPort is where the local server waits for the OAuth redirect.
	LocalhostAuthPort = "6789"
)

// Scopes are the Google API scopes the bot needs.
var Scopes = []string{
	sheets.SpreadsheetsScope,
	calendar.CalendarEventsScope,
	calendar.CalendarReadonlyScope,
}

// Authenticator obtains Google API credentials, either from a service account
// key file or through the installed-app OAuth flow.
type Authenticator struct {
	ConfigDir       string
	CredentialsFile string // service account key; empty selects the OAuth flow
	Logger          *zap.Logger
}

func (a *Authenticator) logger() *zap.Logger {
	if a.Logger == nil {
		return zap.NewNop()
	}
	return a.Logger
}

// ClientOption returns the option used to construct Google API services.
func (a *Authenticator) ClientOption(ctx context.Context) (option.ClientOption, error) {
	if a.CredentialsFile != "" {
		b, err := os.ReadFile(a.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("unable to read service account file %s: %w", a.CredentialsFile, err)
		}
		creds, err := google.CredentialsFromJSON(ctx, b, Scopes...)
		if err != nil {
			return nil, fmt.Errorf("unable to parse service account file: %w", err)
		}
		return option.WithCredentials(creds), nil
	}
	client, err := a.Client(ctx)
	if err != nil {
		return nil, err
	}
	return option.WithHTTPClient(client), nil
}

// OAuthConfig creates an oauth2.Config from the client secrets file.
func (a *Authenticator) OAuthConfig() (*oauth2.Config, error) {
	path := filepath.Join(a.ConfigDir, ClientSecretsFile)
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read client secret file %s: %w", path, err)
	}
	config, err := google.ConfigFromJSON(b, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}

	parsed, err := url.Parse(config.RedirectURL)
	switch {
	case config.RedirectURL == "urn:ietf:wg:oauth:2.0:oob" || err != nil:
		config.RedirectURL = fmt.Sprintf("http://localhost:%s/oauth2callback", LocalhostAuthPort)
	case parsed.Hostname() == "localhost" || parsed.Hostname() == "127.0.0.1":
		if parsed.Port() != LocalhostAuthPort {
			parsed.Host = net.JoinHostPort(parsed.Hostname(), LocalhostAuthPort)
			config.RedirectURL = parsed.String()
		}
	default:
		a.logger().Warn("Redirect URL is neither localhost nor OOB", zap.String("redirect", config.RedirectURL))
	}
	return config, nil
}

// Client returns an HTTP client that refreshes its token automatically. When
// no token is cached the browser flow is started.
func (a *Authenticator) Client(ctx context.Context) (*http.Client, error) {
	config, err := a.OAuthConfig()
	if err != nil {
		return nil, err
	}

	tokenFile := filepath.Join(a.ConfigDir, TokenFile)
	tok, err := tokenFromFile(tokenFile)
	if err != nil {
		a.logger().Info("No cached token, starting web authorization", zap.String("path", tokenFile))
		tok, err = a.tokenFromWeb(config)
		if err != nil {
			return nil, fmt.Errorf("failed to get token from web: %w", err)
		}
		if err := saveToken(tokenFile, tok); err != nil {
			return nil, err
		}
	}

	src := config.TokenSource(ctx, tok)
	current, err := src.Token()
	if err == nil && (current.AccessToken != tok.AccessToken || current.RefreshToken != tok.RefreshToken) {
		if err := saveToken(tokenFile, current); err != nil {
			a.logger().Warn("Could not save refreshed token", zap.Error(err))
		}
	}
	return oauth2.NewClient(ctx, src), nil
}

// Reauthorize removes the cached token and runs the browser flow again.
func (a *Authenticator) Reauthorize(ctx context.Context) error {
	tokenFile := filepath.Join(a.ConfigDir, TokenFile)
	if err := os.Remove(tokenFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("could not delete token file %s: %w", tokenFile, err)
	}
	_, err := a.Client(ctx)
	return err
}

// tokenFromWeb runs the authorization code flow with a local redirect server.
func (a *Authenticator) tokenFromWeb(config *oauth2.Config) (*oauth2.Token, error) {
	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	listener, err := net.Listen("tcp", ":"+LocalhostAuthPort)
	if err != nil {
		return nil, fmt.Errorf("failed to start listener on port %s: %w", LocalhostAuthPort, err)
	}
	defer listener.Close()

	server := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			code := r.URL.Query().Get("code")
			if code == "" {
				http.Error(w, "Authorization code not found", http.StatusBadRequest)
				errCh <- errors.New("authorization code not found in redirect URL")
				return
			}
			fmt.Fprintf(w, "Authentication successful! You can close this window.")
			codeCh <- code
		}),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	authURL := config.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
	fmt.Printf("Open the following URL in your browser to authorize taskbot:\n%s\n", authURL)

	select {
	case code := <-codeCh:
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		tok, err := config.Exchange(ctx, code)
		server.Shutdown(ctx)
		if err != nil {
			return nil, fmt.Errorf("unable to retrieve token from Google: %w", err)
		}
		return tok, nil
	case err := <-errCh:
		server.Shutdown(context.Background())
		return nil, err
	case <-time.After(5 * time.Minute):
		server.Shutdown(context.Background())
		return nil, errors.New("authorization timed out, please try again")
	}
}

func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("failed to decode token from file %s: %w", file, err)
	}
	return tok, nil
}

func saveToken(path string, token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("could not create token directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("unable to cache OAuth token to %s: %w", path, err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(token)
}

// ServiceAccount holds the identifying fields of a service account key.
type ServiceAccount struct {
	ClientEmail string `json:"client_email"`
	ProjectID   string `json:"project_id"`
}

// CheckCredentials reads a service account key and reports who it belongs to.
func CheckCredentials(path string) (ServiceAccount, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return ServiceAccount{}, fmt.Errorf("read credentials %s: %w", path, err)
	}
	var sa ServiceAccount
	if err := json.Unmarshal(b, &sa); err != nil {
		return ServiceAccount{}, fmt.Errorf("decode credentials %s: %w", path, err)
	}
	if sa.ClientEmail == "" {
		return sa, fmt.Errorf("credentials %s have no client_email; is this a service account key?", path)
	}
	return sa, nil
}
