// Package auth provides Google OAuth2 authentication for mailtriage.
//
// Tokens are stored in the token.json format written by Python's google-auth
// library, so tokens minted by other Gmail tooling keep working.
package auth

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/daviddao/mailtriage/internal/types"
)

// Gmail OAuth scopes.
const (
	ScopeReadonly = gmail.GmailReadonlyScope
	ScopeModify   = gmail.GmailModifyScope
)

// Scopes returns the minimal scope set for a run mode: read-only for dry
// runs, modify when actions are applied.
func Scopes(mode string) []string {
	if mode == types.ModeApply {
		return []string{ScopeModify}
	}
	return []string{ScopeReadonly}
}

// Options configures LoadGmailService.
type Options struct {
	CredentialsPath string
	TokenPath       string
	Mode            string

	// In and Out drive the interactive consent flow when no usable token exists.
	In  io.Reader
	Out io.Writer

	Logger *zap.Logger
}

// pythonToken represents the token.json format written by Python's google-auth library.
type pythonToken struct {
	Token        string   `json:"token"`
	RefreshToken string   `json:"refresh_token"`
	TokenURI     string   `json:"token_uri"`
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	Scopes       []string `json:"scopes"`
	Expiry       string   `json:"expiry"`
}

// LoadGmailService returns an authenticated Gmail API service scoped for opts.Mode.
func LoadGmailService(ctx context.Context, opts Options) (*gmail.Service, error) {
	client, err := getClient(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("get oauth client: %w", err)
	}
	return gmail.NewService(ctx, option.WithHTTPClient(client))
}

func getClient(ctx context.Context, opts Options) (*http.Client, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	scopes := Scopes(opts.Mode)

	config, err := loadOAuthConfig(opts.CredentialsPath, scopes)
	if err != nil {
		return nil, err
	}

	token, granted, err := loadPythonToken(opts.TokenPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logger.Info("no token found, starting consent flow", zap.String("token", opts.TokenPath))
	case err != nil:
		return nil, fmt.Errorf("load token from %s: %w", opts.TokenPath, err)
	case !coversScopes(granted, scopes):
		logger.Info("token lacks required scope, starting consent flow", zap.Strings("scopes", scopes))
		token = nil
	}

	if token == nil {
		token, err = authorize(ctx, config, opts.In, opts.Out)
		if err != nil {
			return nil, err
		}
		if err := savePythonToken(opts.TokenPath, token, config); err != nil {
			return nil, fmt.Errorf("save token: %w", err)
		}
		granted = config.Scopes
	}

	// Use a token source that auto-refreshes and save the refreshed token.
	ts := config.TokenSource(ctx, token)
	newToken, err := ts.Token()
	if err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}
	if newToken.AccessToken != token.AccessToken {
		config.Scopes = granted
		if saveErr := savePythonToken(opts.TokenPath, newToken, config); saveErr != nil {
			logger.Warn("could not save refreshed token", zap.Error(saveErr))
		}
	}

	return oauth2.NewClient(ctx, ts), nil
}

// authorize runs the installed-app consent flow: print the URL, read the code.
func authorize(ctx context.Context, config *oauth2.Config, in io.Reader, out io.Writer) (*oauth2.Token, error) {
	if in == nil || out == nil {
		return nil, errors.New("no OAuth token and no terminal to run the consent flow")
	}
	url := config.AuthCodeURL("mailtriage", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	fmt.Fprintf(out, "Open this URL in your browser and authorize access:\n\n  %s\n\nPaste the authorization code: ", url)

	code, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && code != "") {
		return nil, fmt.Errorf("read authorization code: %w", err)
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, errors.New("empty authorization code")
	}

	token, err := config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	return token, nil
}

// coversScopes reports whether granted satisfies every wanted scope.
// gmail.modify implies gmail.readonly.
func coversScopes(granted, wanted []string) bool {
	for _, w := range wanted {
		if slices.Contains(granted, w) {
			continue
		}
		if w == ScopeReadonly && slices.Contains(granted, ScopeModify) {
			continue
		}
		return false
	}
	return true
}

// loadOAuthConfig reads the OAuth client secrets file.
func loadOAuthConfig(credentialsPath string, scopes []string) (*oauth2.Config, error) {
	data, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("read credentials from %s (create Google Cloud OAuth desktop credentials and save the JSON there): %w", credentialsPath, err)
	}

	config, err := google.ConfigFromJSON(data, scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}

	return config, nil
}

// loadPythonToken reads a token.json file and returns the token with the
// scopes it was granted.
func loadPythonToken(tokenPath string) (*oauth2.Token, []string, error) {
	data, err := os.ReadFile(tokenPath)
	if err != nil {
		return nil, nil, err
	}

	var pt pythonToken
	if err := json.Unmarshal(data, &pt); err != nil {
		return nil, nil, fmt.Errorf("parse token: %w", err)
	}

	// Python writes ISO 8601 with microseconds.
	var expiry time.Time
	if pt.Expiry != "" {
		for _, layout := range []string{
			"2006-01-02T15:04:05.999999Z",
			"2006-01-02T15:04:05Z",
			time.RFC3339,
			time.RFC3339Nano,
		} {
			if t, err := time.Parse(layout, pt.Expiry); err == nil {
				expiry = t
				break
			}
		}
	}

	return &oauth2.Token{
		AccessToken:  pt.Token,
		RefreshToken: pt.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       expiry,
	}, pt.Scopes, nil
}

// savePythonToken writes a token in the google-auth format with mode 0600.
func savePythonToken(tokenPath string, token *oauth2.Token, config *oauth2.Config) error {
	pt := pythonToken{
		Token:        token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenURI:     config.Endpoint.TokenURL,
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		Scopes:       config.Scopes,
		Expiry:       token.Expiry.UTC().Format("2006-01-02T15:04:05.999999Z"),
	}

	data, err := json.MarshalIndent(pt, "", "  ")
	if err != nil {
		return err
	}

	if err := os.WriteFile(tokenPath, data, 0o600); err != nil {
		return err
	}
	// WriteFile keeps the mode of an existing file.
	return os.Chmod(tokenPath, 0o600)
}
