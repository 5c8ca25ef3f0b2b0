package driven

import (
	"context"

	"github.com/custodia-labs/sercha-publish/internal/core/domain"
)

// GenerateOptions tunes a content generation request.
type GenerateOptions struct {
	// Provider is the platform the text is written for; generators may use it
	// to respect length limits and tone.
	Provider domain.ProviderType

	// MaxChars is a hint for maximum length (model may not respect exactly).
	MaxChars int
}

// ContentGenerator produces post text from a prompt (an LLM behind the scenes).
type ContentGenerator interface {
	// Generate returns post text for the prompt.
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)

	// Model returns the model name being used.
	Model() string
}

// PublishResult identifies a post created on a platform.
type PublishResult struct {
	PostID string
	URL    string
}

// Publisher posts text to a platform on behalf of a linked account.
type Publisher interface {
	// Provider returns the platform this publisher posts to.
	Provider() domain.ProviderType

	// Publish creates a post using the credential's access token.
	Publish(ctx context.Context, cred *domain.PlatformCredential, text string) (*PublishResult, error)
}
