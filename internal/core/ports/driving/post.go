package driving

import (
	"context"

	"github.com/custodia-labs/sercha-publish/internal/core/domain"
)

// PostService drafts and publishes posts for linked accounts.
type PostService interface {
	// Create drafts text (from Text, or generated from Prompt) and optionally publishes it.
	Create(ctx context.Context, req CreatePostRequest) (*CreatePostResponse, error)
}

// CreatePostRequest asks for a post on one linked account.
// @Description Request to draft and optionally publish a post
type CreatePostRequest struct {
	Provider       domain.ProviderType `json:"provider" example:"twitter"`
	ExternalUserID string              `json:"user_id" example:"42"`

	// Prompt is sent to the content generator when Text is empty.
	Prompt string `json:"prompt,omitempty" example:"Announce our spring release"`

	// Text is used verbatim when set.
	Text string `json:"text,omitempty"`

	// Publish posts the text; otherwise only the draft is returned.
	Publish bool `json:"publish"`
}

// CreatePostResponse carries the drafted text and, when published, the post id.
// @Description Drafted post and publish result
type CreatePostResponse struct {
	Provider  domain.ProviderType `json:"provider"`
	Text      string              `json:"text"`
	Generated bool                `json:"generated"`
	Published bool                `json:"published"`
	PostID    string              `json:"post_id,omitempty"`
	URL       string              `json:"url,omitempty"`
}
