package audit

import (
	"strings"

	"github.com/mssola/useragent"
)

// DeviceLabel turns a User-Agent header into a short "Browser on OS" label
// for audit readers.
func DeviceLabel(userAgent string) string {
	if strings.TrimSpace(userAgent) == "" {
		return "Unknown Device"
	}
	ua := useragent.New(userAgent)

	browser, _ := ua.Browser()
	if browser == "" {
		browser = "Unknown Browser"
	}
	platform := ua.OS()
	if platform == "" {
		platform = ua.Platform()
	}
	if platform == "" {
		platform = "Unknown OS"
	}
	return strings.TrimSpace(browser) + " on " + strings.TrimSpace(platform)
}
