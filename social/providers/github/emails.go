package github

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/goliatone/go-authgate/social"
)

// EmailsClient reads the /user/emails listing of the authenticated user.
type EmailsClient struct {
	url    string
	client *http.Client
}

var _ social.EmailLookup = (*EmailsClient)(nil)

// NewEmailsClient creates a client for the emails endpoint at url.
func NewEmailsClient(url string, client *http.Client) *EmailsClient {
	if url == "" {
		url = defaultEmailsURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &EmailsClient{url: url, client: client}
}

// ListEmails implements social.EmailLookup. Transport failures, non 200
// responses and undecodable bodies are returned as *social.ProviderError.
func (c *EmailsClient) ListEmails(ctx context.Context, accessToken string) ([]social.Email, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, providerError("emails", 0, "", "", err)
	}
	defer resp.Body.Close()

	body, err := readBody(resp)
	if errors.Is(err, errBodyTooLarge) {
		return nil, providerError("emails", resp.StatusCode, "invalid_response", "emails response too large", err)
	}
	if err != nil {
		return nil, providerError("emails", 0, "", "", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, providerError("emails", resp.StatusCode, "", apiErrorMessage(body), nil)
	}

	var emails []social.Email
	if err := json.Unmarshal(body, &emails); err != nil {
		return nil, providerError("emails", resp.StatusCode, "invalid_response", "failed to decode emails response", err)
	}

	return emails, nil
}
