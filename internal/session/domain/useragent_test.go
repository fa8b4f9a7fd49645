package domain

import (
	"testing"
	"time"
)

func TestParseUserAgent(t *testing.T) {
	tests := []struct {
		name string
		ua   string
		want DeviceInfo
	}{
		{"empty", "", DeviceInfo{DeviceUnknown, "unknown", "unknown"}},
		{"chrome windows", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36",
			DeviceInfo{DeviceDesktop, "Chrome", "Windows"}},
		{"edge windows", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36 Edg/120.0",
			DeviceInfo{DeviceDesktop, "Edge", "Windows"}},
		{"safari iphone", "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1",
			DeviceInfo{DeviceMobile, "Safari", "iOS"}},
		{"ipad", "Mozilla/5.0 (iPad; CPU OS 16_0 like Mac OS X) AppleWebKit/605.1.15 Version/16.0 Safari/604.1",
			DeviceInfo{DeviceTablet, "Safari", "iOS"}},
		{"android phone", "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 Chrome/120.0 Mobile Safari/537.36",
			DeviceInfo{DeviceMobile, "Chrome", "Android"}},
		{"android tablet", "Mozilla/5.0 (Linux; Android 13; SM-X700) AppleWebKit/537.36 Chrome/120.0 Safari/537.36",
			DeviceInfo{DeviceTablet, "Chrome", "Android"}},
		{"firefox mac", "Mozilla/5.0 (Macintosh; Intel Mac OS X 14.1; rv:121.0) Gecko/20100101 Firefox/121.0",
			DeviceInfo{DeviceDesktop, "Firefox", "macOS"}},
		{"firefox linux", "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
			DeviceInfo{DeviceDesktop, "Firefox", "Linux"}},
		{"googlebot", "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)",
			DeviceInfo{DeviceBot, "unknown", "unknown"}},
		{"curl", "curl/8.4.0", DeviceInfo{DeviceBot, "unknown", "unknown"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseUserAgent(tt.ua); got != tt.want {
				t.Errorf("ParseUserAgent = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestSession_IsActive(t *testing.T) {
	now := time.Now()
	revoked := now.Add(-time.Minute)
	tests := []struct {
		name string
		s    Session
		want bool
	}{
		{"live", Session{ExpiresAt: now.Add(time.Hour)}, true},
		{"expired", Session{ExpiresAt: now}, false},
		{"revoked", Session{ExpiresAt: now.Add(time.Hour), RevokedAt: &revoked}, false},
	}
	for _, tt := range tests {
		if got := tt.s.IsActive(now); got != tt.want {
			t.Errorf("%s: IsActive = %v, want %v", tt.name, got, tt.want)
		}
	}
}
