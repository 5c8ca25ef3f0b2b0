package driven

// OAuthToken represents OAuth tokens from a provider.
type OAuthToken struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int    // Seconds until expiry
	TokenType    string // Usually "bearer"
	Scope        string // Space-separated scopes
}

// OAuthUserInfo represents the identity behind an access token.
type OAuthUserInfo struct {
	ID       string // Provider-specific user ID
	Name     string
	Username string // Twitter handle
	Email    string // LinkedIn only
	ImageURL string
}
