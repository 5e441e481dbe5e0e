package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	yt "google.golang.org/api/youtube/v3"

	"github.com/idev006/MTYoutubeAutoPost/apikey"
)

// scopes cover upload, metadata update, search and playlist management.
var scopes = []string{
	yt.YoutubeUploadScope,
	yt.YoutubeScope,
}

// AuthPrompt asks the user to complete the consent flow at authURL and
// returns the authorization code. The default implementation reads from
// stdin; tests and UIs substitute their own.
type AuthPrompt func(authURL string) (code string, err error)

// StdinAuthPrompt prints the consent URL and reads the code from stdin.
func StdinAuthPrompt(authURL string) (string, error) {
	fmt.Printf("Open the following URL in a browser and paste the authorization code:\n\n%s\n\ncode: ", authURL)
	var code string
	if _, err := fmt.Scan(&code); err != nil {
		return "", fmt.Errorf("read authorization code: %w", err)
	}
	return code, nil
}

// obtainToken returns a valid OAuth token for the credential set: cached if
// still valid, refreshed when expired with a refresh token, or granted
// interactively as a last resort. The resulting token is persisted next to
// the credential file, keyed by the set's name.
func obtainToken(ctx context.Context, key apikey.CredentialSet, oauthCfg *oauth2.Config, prompt AuthPrompt) (*oauth2.Token, error) {
	tok, err := loadToken(key.TokenPath())
	if err == nil && tok.Valid() {
		return tok, nil
	}

	if err == nil && tok.RefreshToken != "" {
		log.Printf("youtube: refreshing expired token for %s", key.Name)
		fresh, refreshErr := oauthCfg.TokenSource(ctx, tok).Token()
		if refreshErr == nil {
			if saveErr := saveToken(key.TokenPath(), fresh); saveErr != nil {
				log.Printf("youtube: persist refreshed token: %v", saveErr)
			}
			return fresh, nil
		}
		log.Printf("youtube: refresh failed for %s: %v", key.Name, refreshErr)
	}

	if prompt == nil {
		return nil, ErrNotAuthenticated
	}

	log.Printf("youtube: starting interactive grant for %s", key.Name)
	authURL := oauthCfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	code, err := prompt(authURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotAuthenticated, err)
	}

	tok, err = oauthCfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: exchange: %v", ErrNotAuthenticated, err)
	}
	if err := saveToken(key.TokenPath(), tok); err != nil {
		log.Printf("youtube: persist token: %v", err)
	}
	return tok, nil
}

// oauthConfig parses the credential set's client secrets file.
func oauthConfig(key apikey.CredentialSet) (*oauth2.Config, error) {
	data, err := os.ReadFile(key.Path)
	if err != nil {
		return nil, fmt.Errorf("read client secrets %s: %w", key.Name, err)
	}
	cfg, err := google.ConfigFromJSON(data, scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse client secrets %s: %w", key.Name, err)
	}
	return cfg, nil
}

func loadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	tok := &oauth2.Token{}
	if err := json.Unmarshal(data, tok); err != nil {
		return nil, fmt.Errorf("parse token %s: %w", path, err)
	}
	return tok, nil
}

func saveToken(path string, tok *oauth2.Token) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
