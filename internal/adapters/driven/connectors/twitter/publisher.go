package twitter

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/custodia-labs/sercha-publish/internal/adapters/driven/connectors"
	"github.com/custodia-labs/sercha-publish/internal/core/domain"
	"github.com/custodia-labs/sercha-publish/internal/core/ports/driven"
)

// Ensure Publisher implements the interface.
var _ driven.Publisher = (*Publisher)(nil)

// Publisher creates tweets through the v2 API.
type Publisher struct {
	client  *connectors.Client
	baseURL string
}

// NewPublisher creates a tweet publisher. An empty baseURL uses DefaultAPIBaseURL.
func NewPublisher(baseURL string, timeout time.Duration) *Publisher {
	return NewPublisherWithClient(baseURL, connectors.NewClient(domain.ProviderTypeTwitter, timeout))
}

// NewPublisherWithClient creates a publisher around an existing client.
func NewPublisherWithClient(baseURL string, client *connectors.Client) *Publisher {
	if baseURL == "" {
		baseURL = DefaultAPIBaseURL
	}
	return &Publisher{
		client:  client,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

// Provider returns twitter.
func (p *Publisher) Provider() domain.ProviderType {
	return domain.ProviderTypeTwitter
}

// Publish posts a tweet as the credential's account.
func (p *Publisher) Publish(ctx context.Context, cred *domain.PlatformCredential, text string) (*driven.PublishResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: tweet text is empty", domain.ErrInvalidInput)
	}
	if n := utf8.RuneCountInString(text); n > MaxTweetLength {
		return nil, fmt.Errorf("%w: tweet is %d characters, limit is %d", domain.ErrInvalidInput, n, MaxTweetLength)
	}

	var resp struct {
		Data struct {
			ID   string `json:"id"`
			Text string `json:"text"`
		} `json:"data"`
	}
	body := map[string]string{"text": text}
	if _, err := p.client.PostJSON(ctx, connectors.OpPublish, p.baseURL+"/2/tweets", body, &resp,
		connectors.WithBearer(cred.AccessToken)); err != nil {
		return nil, err
	}

	result := &driven.PublishResult{PostID: resp.Data.ID}
	if resp.Data.ID != "" {
		result.URL = "https://twitter.com/i/web/status/" + resp.Data.ID
	}
	return result, nil
}
