package prerender

// DefaultBackendURL is the hosted render service used when no backend is configured.
const DefaultBackendURL = "https://service.prerender.io/"

var defaultIgnoredExtensions = []string{
	".js", ".css", ".xml", ".less", ".png", ".jpg", ".jpeg", ".gif", ".pdf",
	".doc", ".txt", ".ico", ".rss", ".zip", ".mp3", ".rar", ".exe", ".wmv",
	".avi", ".ppt", ".mpg", ".mpeg", ".tif", ".wav", ".mov", ".psd", ".ai",
	".xls", ".mp4", ".m4a", ".swf", ".dat", ".dmg", ".iso", ".flv", ".m4v",
	".torrent", ".woff", ".woff2", ".ttf", ".svg", ".webp", ".eot",
}

var defaultBotUserAgents = []string{
	"googlebot",
	"yahoo",
	"bingbot",
	"yandex",
	"baiduspider",
	"facebookexternalhit",
	"twitterbot",
	"rogerbot",
	"linkedinbot",
	"embedly",
	"quora link preview",
	"showyoubot",
	"outbrain",
	"pinterest",
	"developers.google.com/+/web/snippet",
	"slackbot",
	"vkshare",
	"w3c_validator",
	"redditbot",
	"applebot",
	"whatsapp",
	"flipboard",
	"tumblr",
	"bitlybot",
	"skypeuripreview",
	"nuzzel",
	"discordbot",
	"google page speed",
}

// DefaultIgnoredExtensions returns a fresh copy of the static-asset extensions
// that are never prerendered.
func DefaultIgnoredExtensions() []string {
	return append([]string(nil), defaultIgnoredExtensions...)
}

// DefaultBotUserAgents returns a fresh copy of the crawler user-agent
// fragments that trigger a prerender.
func DefaultBotUserAgents() []string {
	return append([]string(nil), defaultBotUserAgents...)
}
