package llmrouter

import (
	"sync"

	"github.com/sdforge/sdforge-gateway/internal/apperr"
)

// Factory builds a Provider from its resolved configuration values. Each
// concrete provider file registers one of these from its own init().
type Factory func(apiKey, apiBase, defaultModel string) Provider

var (
	registryMu sync.Mutex
	factories  = make(map[string]Factory)
)

// RegisterProvider adds a Factory to the global registry under name.
// Concrete provider files call this from init().
func RegisterProvider(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	factories[name] = f
}

// Registry resolves provider names to live Provider instances, and decides
// which provider backs a given chat turn versus the fixed image-assist
// channel (spec §4.6).
type Registry struct {
	mu               sync.RWMutex
	instances        map[string]Provider
	chatProvider     string
	imageAssistName  string
}

// NewRegistry builds a Registry. chatDefault names the provider used for
// Chat(userID) absent a per-user override; imageAssist names the provider
// permanently bound to ImageAssist(), per spec §4.6's "ImageAssist always
// uses the locally-configured provider" rule.
func NewRegistry(chatDefault, imageAssist string) *Registry {
	return &Registry{
		instances:       make(map[string]Provider),
		chatProvider:    chatDefault,
		imageAssistName: imageAssist,
	}
}

// Install instantiates and registers a provider under name, using the
// Factory registered for that name. Outbound calls are throttled to
// requestsPerSecond (with a matching burst) so a provider's own rate limit
// fails a request into a short wait instead of an upstream 429; pass 0 to
// leave a provider unthrottled (e.g. a local Ollama instance).
func (r *Registry) Install(name, apiKey, apiBase, defaultModel string, requestsPerSecond int) error {
	registryMu.Lock()
	f, ok := factories[name]
	registryMu.Unlock()
	if !ok {
		return apperr.Newf(apperr.Configuration, "no llm provider factory registered for %q", name)
	}
	p := f(apiKey, apiBase, defaultModel)
	p = withThrottle(p, float64(requestsPerSecond), max(requestsPerSecond, 1))

	r.mu.Lock()
	defer r.mu.Unlock()
	r.instances[name] = p
	return nil
}

// Chat resolves the provider backing ordinary conversation turns. userID is
// accepted for future per-user provider overrides (spec §4.5 settings can
// carry a provider choice); today it always resolves the configured default.
func (r *Registry) Chat(userID string) (Provider, error) {
	return r.resolve(r.chatProvider)
}

// ImageAssist resolves the provider backing the image-assist vision channel.
// It ignores any user-level chat-provider override, per spec §4.6.
func (r *Registry) ImageAssist() (Provider, error) {
	return r.resolve(r.imageAssistName)
}

func (r *Registry) resolve(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.instances[name]
	if !ok {
		return nil, apperr.Newf(apperr.Configuration, "llm provider %q is not installed", name)
	}
	return p, nil
}

// Names lists installed provider names, for doctor/diagnostics output.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.instances))
	for name := range r.instances {
		out = append(out, name)
	}
	return out
}
