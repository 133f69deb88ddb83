package vision

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/your-org/facebot/internal/config"
)

// apiKeyTokenType is sent verbatim as the Authorization scheme.
const apiKeyTokenType = "Api-Key"

// NewTokenSource picks the credential for vision calls: a static IAM token,
// a static API key, or short-lived tokens from the instance metadata service
// cached until shortly before expiry.
func NewTokenSource(cfg config.VisionConfig, client *http.Client) (oauth2.TokenSource, error) {
	switch {
	case cfg.IAMToken != "":
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.IAMToken, TokenType: "Bearer"}), nil
	case cfg.APIKey != "":
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.APIKey, TokenType: apiKeyTokenType}), nil
	case cfg.UseMetadata:
		if client == nil {
			client = &http.Client{Timeout: 5 * time.Second}
		}
		return oauth2.ReuseTokenSource(nil, &metadataTokenSource{url: cfg.MetadataURL, client: client}), nil
	default:
		return nil, fmt.Errorf("vision: no credential configured (iam_token, api_key or use_metadata)")
	}
}

// metadataTokenSource fetches the service account token of the VM or
// serverless container the process runs in.
type metadataTokenSource struct {
	url    string
	client *http.Client
}

func (m *metadataTokenSource) Token() (*oauth2.Token, error) {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, m.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build metadata request: %w", err)
	}
	req.Header.Set("Metadata-Flavor", "Google")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch metadata token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch metadata token: status %d", resp.StatusCode)
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
		TokenType   string `json:"token_type"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode metadata token: %w", err)
	}
	if body.AccessToken == "" {
		return nil, fmt.Errorf("metadata token response has no access_token")
	}
	return &oauth2.Token{
		AccessToken: body.AccessToken,
		TokenType:   "Bearer",
		Expiry:      time.Now().Add(time.Duration(body.ExpiresIn) * time.Second),
	}, nil
}
