package prerender

import (
	"net/http"
	"strings"
)

// EscapedFragmentParam is the query parameter of the AJAX crawling scheme.
const EscapedFragmentParam = "_escaped_fragment_"

// Reason explains a Decision.
type Reason string

// Decision reasons. The first three mean pass-through because the request is
// not eligible, no_trigger means it was eligible but nothing asked for a
// snapshot, and the last two name the trigger that fired.
const (
	ReasonMethod          Reason = "method"
	ReasonExtension       Reason = "extension"
	ReasonBlacklist       Reason = "blacklist"
	ReasonNoTrigger       Reason = "no_trigger"
	ReasonEscapedFragment Reason = "escaped_fragment"
	ReasonBotUserAgent    Reason = "bot_user_agent"
)

// Decision is the outcome of evaluating a request against a Config.
type Decision struct {
	Prerender bool
	Reason    Reason
}

// Decide runs the decision chain for r. It has no side effects.
func (c *Config) Decide(r *http.Request) Decision {
	if !isCacheable(r) {
		return Decision{Reason: ReasonMethod}
	}
	if ok, reason := c.prerenderable(r); !ok {
		return Decision{Reason: reason}
	}
	if isMappedAjaxCrawl(r) {
		return Decision{Prerender: true, Reason: ReasonEscapedFragment}
	}
	if c.isBot(r) {
		return Decision{Prerender: true, Reason: ReasonBotUserAgent}
	}
	return Decision{Reason: ReasonNoTrigger}
}

// IsPrerenderable reports whether r passes the extension and path list
// checks, ignoring method and triggers.
func (c *Config) IsPrerenderable(r *http.Request) bool {
	ok, _ := c.prerenderable(r)
	return ok
}

func (c *Config) prerenderable(r *http.Request) (bool, Reason) {
	uri := requestURI(r)
	if c.hasIgnoredExtension(uri) {
		return false, ReasonExtension
	}
	if len(c.whitelist) > 0 && c.isWhitelisted(uri) {
		return true, ""
	}
	if len(c.blacklist) > 0 && c.isBlacklisted(uri, r.Referer()) {
		return false, ReasonBlacklist
	}
	return true, ""
}

func isCacheable(r *http.Request) bool {
	return r.Method == http.MethodGet
}

func (c *Config) hasIgnoredExtension(uri string) bool {
	lowered := strings.ToLower(uri)
	for ext := range c.ignoredExtensions {
		if strings.Contains(lowered, ext) {
			return true
		}
	}
	return false
}

func (c *Config) isWhitelisted(uri string) bool {
	for _, re := range c.whitelist {
		if re.MatchString(uri) {
			return true
		}
	}
	return false
}

func (c *Config) isBlacklisted(uri, referer string) bool {
	for _, re := range c.blacklist {
		if re.MatchString(uri) {
			return true
		}
		if referer != "" && re.MatchString(referer) {
			return true
		}
	}
	return false
}

func isMappedAjaxCrawl(r *http.Request) bool {
	_, ok := r.URL.Query()[EscapedFragmentParam]
	return ok
}

// isBot matches when a configured fragment is a substring of the lowercased
// User-Agent.
func (c *Config) isBot(r *http.Request) bool {
	agent := strings.ToLower(r.UserAgent())
	if agent == "" {
		return false
	}
	for bot := range c.botUserAgents {
		if strings.Contains(agent, bot) {
			return true
		}
	}
	return false
}

// requestURI returns the path and query the client asked for.
func requestURI(r *http.Request) string {
	if r.RequestURI != "" {
		return r.RequestURI
	}
	return r.URL.RequestURI()
}

// TargetURL is the backend URL for the page r addresses: the backend root
// followed by the absolute page URL.
func (c *Config) TargetURL(r *http.Request) string {
	return c.backendURL + pageAddress(r)
}

func pageAddress(r *http.Request) string {
	uri := requestURI(r)
	if strings.HasPrefix(uri, "http://") || strings.HasPrefix(uri, "https://") {
		return uri
	}
	host := r.Host
	if host == "" {
		host = r.URL.Host
	}
	return requestScheme(r) + "://" + host + uri
}

func requestScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		first, _, _ := strings.Cut(proto, ",")
		if strings.EqualFold(strings.TrimSpace(first), "https") {
			return "https"
		}
	}
	return "http"
}
