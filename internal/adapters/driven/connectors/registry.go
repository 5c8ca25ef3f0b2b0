package connectors

import (
	"fmt"
	"sort"
	"sync"

	"github.com/custodia-labs/sercha-publish/internal/core/domain"
	"github.com/custodia-labs/sercha-publish/internal/core/ports/driven"
)

// Registry maintains the OAuth handlers and publishers for each provider type.
type Registry struct {
	mu            sync.RWMutex
	oauthHandlers map[domain.ProviderType]OAuthHandler
	publishers    map[domain.ProviderType]driven.Publisher
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		oauthHandlers: make(map[domain.ProviderType]OAuthHandler),
		publishers:    make(map[domain.ProviderType]driven.Publisher),
	}
}

// RegisterOAuthHandler registers an OAuth handler under its provider type.
func (r *Registry) RegisterOAuthHandler(handler OAuthHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.oauthHandlers[handler.Provider()] = handler
}

// RegisterPublisher registers a publisher under its provider type.
func (r *Registry) RegisterPublisher(publisher driven.Publisher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.publishers[publisher.Provider()] = publisher
}

// OAuthHandler returns the handler for a provider type.
func (r *Registry) OAuthHandler(providerType domain.ProviderType) (OAuthHandler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handler, ok := r.oauthHandlers[providerType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedProvider, providerType)
	}
	return handler, nil
}

// Publisher returns the publisher for a provider type.
func (r *Registry) Publisher(providerType domain.ProviderType) (driven.Publisher, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	publisher, ok := r.publishers[providerType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrPublisherUnavailable, providerType)
	}
	return publisher, nil
}

// SupportedTypes returns all provider types with an OAuth handler, sorted.
func (r *Registry) SupportedTypes() []domain.ProviderType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]domain.ProviderType, 0, len(r.oauthHandlers))
	for t := range r.oauthHandlers {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
