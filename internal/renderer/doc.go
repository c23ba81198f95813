// Package renderer is a self-hosted render backend. It answers
// GET /<absolute page URL> with the page's HTML after JavaScript has run in
// headless Chrome, which is the protocol the prerender middleware speaks.
package renderer
