// File: internal/shaper/personas.go
package shaper

// DeviceClass groups personas by form factor.
type DeviceClass string

const (
	DeviceDesktop DeviceClass = "desktop"
	DeviceMobile  DeviceClass = "mobile"
	DeviceTablet  DeviceClass = "tablet"
)

// Persona defines the browser characteristics a request emulates. Platform
// and Mobile feed the client-hint headers so they never contradict the
// User-Agent string.
type Persona struct {
	UserAgent string
	Family    string
	Platform  string
	Device    DeviceClass
}

// personaPool is a fixed set of realistic browser identities spanning four
// browser families across desktop, mobile and tablet form factors.
var personaPool = []Persona{
	// Chrome
	{
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
		Family:    "chrome", Platform: "Windows", Device: DeviceDesktop,
	},
	{
		UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36",
		Family:    "chrome", Platform: "macOS", Device: DeviceDesktop,
	},
	{
		UserAgent: "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Mobile Safari/537.36",
		Family:    "chrome", Platform: "Android", Device: DeviceMobile,
	},
	// Firefox
	{
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:127.0) Gecko/20100101 Firefox/127.0",
		Family:    "firefox", Platform: "Windows", Device: DeviceDesktop,
	},
	{
		UserAgent: "Mozilla/5.0 (X11; Linux x86_64; rv:126.0) Gecko/20100101 Firefox/126.0",
		Family:    "firefox", Platform: "Linux", Device: DeviceDesktop,
	},
	// Safari
	{
		UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Safari/605.1.15",
		Family:    "safari", Platform: "macOS", Device: DeviceDesktop,
	},
	{
		UserAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 17_5 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Mobile/15E148 Safari/604.1",
		Family:    "safari", Platform: "iOS", Device: DeviceMobile,
	},
	{
		UserAgent: "Mozilla/5.0 (iPad; CPU OS 17_5 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Mobile/15E148 Safari/604.1",
		Family:    "safari", Platform: "iOS", Device: DeviceTablet,
	},
	// Edge
	{
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36 Edg/126.0.0.0",
		Family:    "edge", Platform: "Windows", Device: DeviceDesktop,
	},
	{
		UserAgent: "Mozilla/5.0 (Linux; Android 14; SM-X910) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36 EdgA/125.0.0.0",
		Family:    "edge", Platform: "Android", Device: DeviceTablet,
	},
}

// acceptLanguages is the small fixed pool the shaper draws from.
var acceptLanguages = []string{
	"en-US,en;q=0.9",
	"en-GB,en;q=0.9",
	"en-US,en;q=0.8,es;q=0.5",
	"en-CA,en;q=0.9,fr-CA;q=0.6",
}
