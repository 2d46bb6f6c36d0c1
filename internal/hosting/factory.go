package hosting

import "fmt"

// Config holds hosting provider credentials and endpoint.
type Config struct {
	// Token is the API token used for every request. Required.
	Token string

	// BaseURL points at a self-hosted instance (e.g. "https://gitlab.company.com").
	// Leave empty for github.com / gitlab.com.
	BaseURL string
}

// NewProviderFunc is a constructor function for creating a hosting provider.
// The factory avoids import cycles by having the GitHub/GitLab packages
// register their constructors at init time.
type NewProviderFunc func(cfg Config) (Provider, error)

// Provider constructors registered by provider packages.
var providerConstructors = map[ProviderType]NewProviderFunc{}

// RegisterProvider registers a provider constructor.
// Called from init() in provider packages (github/, gitlab/).
func RegisterProvider(providerType ProviderType, constructor NewProviderFunc) {
	providerConstructors[providerType] = constructor
}

// NewProvider creates a hosting provider of the given type.
func NewProvider(providerType ProviderType, cfg Config) (Provider, error) {
	constructor, ok := providerConstructors[providerType]
	if !ok {
		return nil, fmt.Errorf("no provider registered for %q (registered: %v)", providerType, registeredProviders())
	}
	return constructor(cfg)
}

func registeredProviders() []ProviderType {
	providers := make([]ProviderType, 0, len(providerConstructors))
	for pt := range providerConstructors {
		providers = append(providers, pt)
	}
	return providers
}
