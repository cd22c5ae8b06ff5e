package version

import "strings"

// Version is set at build time with:
// -ldflags "-X github.com/izzyreal/nodeagent/internal/version.Version=vX.Y.Z"
var Version = "dev"

func Current() string {
	v := strings.TrimSpace(Version)
	if v == "" {
		return "dev"
	}
	return v
}

// UserAgent is the User-Agent value the agent sends with every API request.
func UserAgent() string {
	return "nodeagent/" + Current()
}

// FromUserAgent extracts the version from a nodeagent User-Agent value.
// It returns "" when the value was not produced by UserAgent.
func FromUserAgent(ua string) string {
	ua = strings.TrimSpace(ua)
	if i := strings.IndexByte(ua, ' '); i >= 0 {
		ua = ua[:i]
	}
	v, ok := strings.CutPrefix(ua, "nodeagent/")
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}
