package usecase

import (
	"net/url"
	"strings"
)

// NormalizeOrigin reduces user input such as "mastodon.social" or
// "https://Mastodon.Social/@me" to "https://mastodon.social".
func NormalizeOrigin(instance string) (string, error) {
	raw := strings.TrimSpace(instance)
	if raw == "" {
		return "", validationError("instance is required")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", validationError("instance is not a valid URL")
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "https" && scheme != "http" {
		return "", validationError("instance must use http or https")
	}
	if u.Host == "" || u.User != nil {
		return "", validationError("instance must name a host")
	}
	host := strings.ToLower(u.Host)
	if (scheme == "https" && strings.HasSuffix(host, ":443")) || (scheme == "http" && strings.HasSuffix(host, ":80")) {
		host = host[:strings.LastIndex(host, ":")]
	}
	return scheme + "://" + host, nil
}
