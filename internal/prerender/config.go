package prerender

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"strings"
)

// ErrInvalidArgument reports a configuration value that cannot be used.
var ErrInvalidArgument = errors.New("invalid argument")

// Options are caller-supplied overrides merged with the defaults by NewConfig.
// A nil IgnoredExtensions or BotUserAgents slice selects the default list; an
// empty non-nil slice selects no entries at all.
type Options struct {
	BackendURL        string
	PrerenderToken    string
	IgnoredExtensions []string
	BotUserAgents     []string
	Blacklist         []string
	Whitelist         []string
}

// Config holds the prerender decision configuration. It is assembled once and
// treated as read-only once handed to New, which keeps its own copy. Build
// one with NewConfig; the zero value is not usable.
type Config struct {
	backendURL        string
	prerenderToken    string
	ignoredExtensions map[string]struct{}
	botUserAgents     map[string]struct{}
	blacklist         map[string]*regexp.Regexp
	whitelist         map[string]*regexp.Regexp
}

// NewConfig merges opts with the defaults. It fails on the first invalid
// value, so a Config is never returned half-built.
func NewConfig(opts Options) (*Config, error) {
	c := &Config{
		ignoredExtensions: make(map[string]struct{}),
		botUserAgents:     make(map[string]struct{}),
		blacklist:         make(map[string]*regexp.Regexp),
		whitelist:         make(map[string]*regexp.Regexp),
	}
	if err := c.AddToBlacklist(opts.Blacklist...); err != nil {
		return nil, err
	}
	if err := c.AddToWhitelist(opts.Whitelist...); err != nil {
		return nil, err
	}
	c.SetPrerenderToken(opts.PrerenderToken)

	backend := opts.BackendURL
	if backend == "" {
		backend = DefaultBackendURL
	}
	if err := c.SetBackendURL(backend); err != nil {
		return nil, err
	}

	extensions := opts.IgnoredExtensions
	if extensions == nil {
		extensions = defaultIgnoredExtensions
	}
	if err := c.SkipExtensions(extensions...); err != nil {
		return nil, err
	}

	bots := opts.BotUserAgents
	if bots == nil {
		bots = defaultBotUserAgents
	}
	if err := c.PrerenderForUserAgents(bots...); err != nil {
		return nil, err
	}
	return c, nil
}

// SetBackendURL validates raw as an absolute URL with a host and stores it
// with exactly one trailing slash.
func (c *Config) SetBackendURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%w: backend url %q: %v", ErrInvalidArgument, raw, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("%w: backend url %q has no host", ErrInvalidArgument, raw)
	}
	c.backendURL = strings.TrimRight(u.String(), "/") + "/"
	return nil
}

// SetPrerenderToken sets the X-Prerender-Token value; empty disables the header.
func (c *Config) SetPrerenderToken(token string) {
	c.prerenderToken = token
}

// SkipExtensions adds extensions that are never prerendered.
func (c *Config) SkipExtensions(extensions ...string) error {
	return apply(extensions, func(ext string) error {
		normalized, err := normalizeExtension(ext)
		if err != nil {
			return err
		}
		c.ignoredExtensions[normalized] = struct{}{}
		return nil
	})
}

// PrerenderExtensions removes extensions from the ignored set.
func (c *Config) PrerenderExtensions(extensions ...string) error {
	return apply(extensions, func(ext string) error {
		normalized, err := normalizeExtension(ext)
		if err != nil {
			return err
		}
		delete(c.ignoredExtensions, normalized)
		return nil
	})
}

// PrerenderForUserAgents adds bot user-agent fragments.
func (c *Config) PrerenderForUserAgents(bots ...string) error {
	return apply(bots, func(bot string) error {
		normalized, err := normalizeBot(bot)
		if err != nil {
			return err
		}
		c.botUserAgents[normalized] = struct{}{}
		return nil
	})
}

// SkipForUserAgents removes bot user-agent fragments.
func (c *Config) SkipForUserAgents(bots ...string) error {
	return apply(bots, func(bot string) error {
		normalized, err := normalizeBot(bot)
		if err != nil {
			return err
		}
		delete(c.botUserAgents, normalized)
		return nil
	})
}

// AddToBlacklist adds patterns that exclude a URI or Referer from prerendering.
func (c *Config) AddToBlacklist(patterns ...string) error {
	return apply(patterns, func(pattern string) error {
		return addPattern(c.blacklist, pattern)
	})
}

// DropFromBlacklist removes previously added blacklist patterns.
func (c *Config) DropFromBlacklist(patterns ...string) error {
	return apply(patterns, func(pattern string) error {
		delete(c.blacklist, pattern)
		return nil
	})
}

// AddToWhitelist adds patterns that force a URI to be prerenderable.
func (c *Config) AddToWhitelist(patterns ...string) error {
	return apply(patterns, func(pattern string) error {
		return addPattern(c.whitelist, pattern)
	})
}

// DropFromWhitelist removes previously added whitelist patterns.
func (c *Config) DropFromWhitelist(patterns ...string) error {
	return apply(patterns, func(pattern string) error {
		delete(c.whitelist, pattern)
		return nil
	})
}

// BackendURL returns the normalized backend root.
func (c *Config) BackendURL() string { return c.backendURL }

// PrerenderToken returns the configured token, possibly empty.
func (c *Config) PrerenderToken() string { return c.prerenderToken }

// IgnoredExtensions returns the ignored extensions in sorted order.
func (c *Config) IgnoredExtensions() []string { return sortedKeys(c.ignoredExtensions) }

// BotUserAgents returns the bot user-agent fragments in sorted order.
func (c *Config) BotUserAgents() []string { return sortedKeys(c.botUserAgents) }

// Blacklist returns the blacklist patterns in sorted order.
func (c *Config) Blacklist() []string { return sortedKeys(c.blacklist) }

// Whitelist returns the whitelist patterns in sorted order.
func (c *Config) Whitelist() []string { return sortedKeys(c.whitelist) }

// Clone returns a deep copy. Compiled patterns are shared since a
// *regexp.Regexp is safe for concurrent use.
func (c *Config) Clone() *Config {
	return &Config{
		backendURL:        c.backendURL,
		prerenderToken:    c.prerenderToken,
		ignoredExtensions: cloneMap(c.ignoredExtensions),
		botUserAgents:     cloneMap(c.botUserAgents),
		blacklist:         cloneMap(c.blacklist),
		whitelist:         cloneMap(c.whitelist),
	}
}

func apply(values []string, fn func(string) error) error {
	for _, v := range values {
		if err := fn(v); err != nil {
			return err
		}
	}
	return nil
}

func normalizeExtension(ext string) (string, error) {
	trimmed := strings.TrimLeft(strings.ToLower(strings.TrimSpace(ext)), ".")
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty extension %q", ErrInvalidArgument, ext)
	}
	return "." + trimmed, nil
}

func normalizeBot(bot string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(bot))
	if normalized == "" {
		return "", fmt.Errorf("%w: empty bot user agent", ErrInvalidArgument)
	}
	return normalized, nil
}

func addPattern(set map[string]*regexp.Regexp, pattern string) error {
	if pattern == "" {
		return fmt.Errorf("%w: empty path pattern", ErrInvalidArgument)
	}
	if _, ok := set[pattern]; ok {
		return nil
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return fmt.Errorf("%w: path pattern %q: %v", ErrInvalidArgument, pattern, err)
	}
	set[pattern] = re
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func cloneMap[V any](src map[string]V) map[string]V {
	dst := make(map[string]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
