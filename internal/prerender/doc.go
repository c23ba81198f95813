// Package prerender implements the prerender decision middleware.
//
// For every inbound request the middleware decides between passing the
// request through to the wrapped application and serving a snapshot fetched
// from a remote render backend. Only GET requests for non-asset URIs are
// considered, and only when the request is an AJAX crawl
// (_escaped_fragment_) or comes from a known bot user agent. The whitelist
// is consulted before the blacklist.
//
// The decision chain is exposed separately as Config.Decide so hosts that do
// not speak net/http can reuse it.
package prerender
