package linkedin

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

// Publisher creates member shares through the UGC Posts API.
type Publisher struct {
	client  *connectors.Client
	baseURL string
}

// NewPublisher creates a share publisher. An empty baseURL uses DefaultAPIBaseURL.
func NewPublisher(baseURL string, timeout time.Duration) *Publisher {
	return NewPublisherWithClient(baseURL, connectors.NewClient(domain.ProviderTypeLinkedIn, timeout))
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

// Provider returns linkedin.
func (p *Publisher) Provider() domain.ProviderType {
	return domain.ProviderTypeLinkedIn
}

type shareCommentary struct {
	Text string `json:"text"`
}

type shareContent struct {
	ShareCommentary    shareCommentary `json:"shareCommentary"`
	ShareMediaCategory string          `json:"shareMediaCategory"`
}

type ugcPost struct {
	Author          string                  `json:"author"`
	LifecycleState  string                  `json:"lifecycleState"`
	SpecificContent map[string]shareContent `json:"specificContent"`
	Visibility      map[string]string       `json:"visibility"`
}

// Publish creates a public text share authored by the credential's member.
func (p *Publisher) Publish(ctx context.Context, cred *domain.PlatformCredential, text string) (*driven.PublishResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: post text is empty", domain.ErrInvalidInput)
	}
	if n := utf8.RuneCountInString(text); n > MaxPostLength {
		return nil, fmt.Errorf("%w: post is %d characters, limit is %d", domain.ErrInvalidInput, n, MaxPostLength)
	}

	post := ugcPost{
		Author:         "urn:li:person:" + cred.ExternalUserID,
		LifecycleState: "PUBLISHED",
		SpecificContent: map[string]shareContent{
			"com.linkedin.ugc.ShareContent": {
				ShareCommentary:    shareCommentary{Text: text},
				ShareMediaCategory: "NONE",
			},
		},
		Visibility: map[string]string{
			"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC",
		},
	}

	var resp struct {
		ID string `json:"id"`
	}
	header, err := p.client.PostJSON(ctx, connectors.OpPublish, p.baseURL+"/v2/ugcPosts", post, &resp,
		connectors.WithBearer(cred.AccessToken),
		connectors.WithHeader("X-Restli-Protocol-Version", "2.0.0"))
	if err != nil {
		return nil, err
	}

	id := header.Get("X-RestLi-Id")
	if id == "" {
		id = resp.ID
	}
	result := &driven.PublishResult{PostID: id}
	if id != "" {
		result.URL = "https://www.linkedin.com/feed/update/" + id
	}
	return result, nil
}
