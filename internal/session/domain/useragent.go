package domain

import "strings"

// DeviceType is the coarse device class parsed from a user agent.
type DeviceType string

const (
	DeviceDesktop DeviceType = "desktop"
	DeviceMobile  DeviceType = "mobile"
	DeviceTablet  DeviceType = "tablet"
	DeviceBot     DeviceType = "bot"
	DeviceUnknown DeviceType = "unknown"
)

// DeviceInfo describes the client of a session. Parsing is heuristic.
type DeviceInfo struct {
	Type    DeviceType `json:"type"`
	Browser string     `json:"browser"`
	OS      string     `json:"os"`
}

const unknown = "unknown"

// ParseUserAgent extracts device class, browser and OS from a User-Agent header. Anything it
// cannot recognize is reported as "unknown".
func ParseUserAgent(ua string) DeviceInfo {
	if strings.TrimSpace(ua) == "" {
		return DeviceInfo{Type: DeviceUnknown, Browser: unknown, OS: unknown}
	}
	l := strings.ToLower(ua)
	return DeviceInfo{Type: deviceType(l), Browser: browser(l), OS: operatingSystem(l)}
}

func deviceType(l string) DeviceType {
	switch {
	case containsAny(l, "bot", "crawler", "spider", "curl/", "wget/", "python-requests", "go-http-client"):
		return DeviceBot
	case containsAny(l, "ipad", "tablet", "kindle", "silk/"),
		strings.Contains(l, "android") && !strings.Contains(l, "mobile"):
		return DeviceTablet
	case containsAny(l, "mobi", "iphone", "ipod", "android", "windows phone"):
		return DeviceMobile
	default:
		return DeviceDesktop
	}
}

// browser checks the most specific tokens first: Edge and Opera also carry "chrome/", and
// Chrome also carries "safari/".
func browser(l string) string {
	switch {
	case containsAny(l, "edg/", "edge/", "edga/", "edgios/"):
		return "Edge"
	case containsAny(l, "opr/", "opera"):
		return "Opera"
	case strings.Contains(l, "samsungbrowser/"):
		return "Samsung Internet"
	case containsAny(l, "chrome/", "crios/"):
		return "Chrome"
	case containsAny(l, "firefox/", "fxios/"):
		return "Firefox"
	case strings.Contains(l, "safari/"):
		return "Safari"
	case containsAny(l, "msie ", "trident/"):
		return "Internet Explorer"
	default:
		return unknown
	}
}

// operatingSystem checks iOS before macOS because iOS agents say "like Mac OS X".
func operatingSystem(l string) string {
	switch {
	case strings.Contains(l, "windows phone"):
		return "Windows Phone"
	case strings.Contains(l, "windows"):
		return "Windows"
	case containsAny(l, "iphone", "ipad", "ipod"):
		return "iOS"
	case strings.Contains(l, "android"):
		return "Android"
	case strings.Contains(l, "cros "):
		return "ChromeOS"
	case containsAny(l, "mac os x", "macintosh"):
		return "macOS"
	case strings.Contains(l, "linux"):
		return "Linux"
	default:
		return unknown
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
