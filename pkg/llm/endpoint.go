package llm

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// AuthStyle is how credentials are attached to a request.
type AuthStyle int

const (
	// AuthBearer sends "Authorization: Bearer <key>".
	AuthBearer AuthStyle = iota
	// AuthVendorHeader sends "api-key: <key>" (Azure-shaped deployments).
	AuthVendorHeader
	// AuthNone sends no credential header at all.
	AuthNone
)

func (s AuthStyle) String() string {
	switch s {
	case AuthVendorHeader:
		return "vendor-header"
	case AuthNone:
		return "none"
	default:
		return "bearer"
	}
}

// EndpointProfile holds the static, URL-derived facts about an endpoint.
// It is computed once per model configuration, before any network call, and
// never changes afterward: a URL does not change its provider dialect.
type EndpointProfile struct {
	BaseURL      string
	RequiresAuth bool
	AuthStyle    AuthStyle
}

// profileRule matches a URL against a known vendor pattern and contributes
// facts to the profile. Rules are data: supporting a new provider pattern is
// a new table entry, not a new code path. The first matching rule wins.
type profileRule struct {
	name         string
	matches      func(u *url.URL) bool
	authStyle    AuthStyle
	requiresAuth bool
}

var profileRules = []profileRule{
	{
		// Azure-style deployment paths authenticate with an api-key header
		// instead of a bearer token.
		name: "azure-deployment",
		matches: func(u *url.URL) bool {
			return strings.Contains(u.Path, "/openai/deployments/")
		},
		authStyle:    AuthVendorHeader,
		requiresAuth: true,
	},
	{
		// Loopback hosts are local inference servers (Ollama, llama.cpp,
		// LM Studio) that normally run without keys.
		name: "loopback",
		matches: func(u *url.URL) bool {
			host := u.Hostname()
			if strings.EqualFold(host, "localhost") {
				return true
			}
			if ip := net.ParseIP(host); ip != nil {
				return ip.IsLoopback()
			}
			return false
		},
		authStyle:    AuthNone,
		requiresAuth: false,
	},
}

// ResolveEndpoint derives an EndpointProfile from the endpoint URL and the
// optional user-supplied "requires auth" flag. The explicit flag wins over
// the rule table; with no flag, the first matching rule decides, and the
// default is bearer auth. Pure function, no network.
func ResolveEndpoint(rawURL string, requireAuth *bool) (EndpointProfile, error) {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return EndpointProfile{}, fmt.Errorf("%w: endpoint URL is empty", ErrConfiguration)
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return EndpointProfile{}, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return EndpointProfile{}, fmt.Errorf("%w: endpoint URL %q must use http or https", ErrConfiguration, trimmed)
	}
	if u.Host == "" {
		return EndpointProfile{}, fmt.Errorf("%w: endpoint URL %q has no host", ErrConfiguration, trimmed)
	}

	profile := EndpointProfile{
		BaseURL:      strings.TrimRight(trimmed, "/"),
		RequiresAuth: true,
		AuthStyle:    AuthBearer,
	}

	for _, rule := range profileRules {
		if rule.matches(u) {
			profile.AuthStyle = rule.authStyle
			profile.RequiresAuth = rule.requiresAuth
			break
		}
	}

	if requireAuth != nil {
		profile.RequiresAuth = *requireAuth
		if *requireAuth && profile.AuthStyle == AuthNone {
			profile.AuthStyle = AuthBearer
		}
	}
	if !profile.RequiresAuth {
		profile.AuthStyle = AuthNone
	}

	return profile, nil
}

// CompletionsURL returns the chat-completions endpoint for this profile.
// Azure-shaped URLs already carry the full deployment path (and often an
// api-version query), so they are used as-is.
func (p EndpointProfile) CompletionsURL() string {
	u, err := url.Parse(p.BaseURL)
	if err != nil {
		return p.BaseURL
	}
	if !strings.Contains(u.Path, "/chat/completions") {
		u.Path = strings.TrimRight(u.Path, "/") + "/chat/completions"
	}
	return u.String()
}
