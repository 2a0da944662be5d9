package providers

import (
	"net/http"
	"time"

	"github.com/bryanwahyu/viruslens/internal/domain/scans"
)

// Settings is the provider part of the service config.
type Settings struct {
	MockMode      bool
	VirusTotalKey string
	URLScanKey    string
	OTXKey        string
	Retries       int
	Backoff       time.Duration

	// base URL overrides, empty means the public endpoint
	VirusTotalURL string
	URLScanURL    string
	OTXURL        string
}

// Build returns the providers in registration order: VirusTotal, urlscan.io,
// AlienVault OTX. Mock mode replaces all of them with MockSet.
func Build(s Settings, client *http.Client) []scans.Provider {
	if s.MockMode {
		return MockSet()
	}
	opts := func(base, key string) Options {
		return Options{BaseURL: base, APIKey: key, Client: client, Retries: s.Retries, Backoff: s.Backoff}
	}
	return []scans.Provider{
		NewVirusTotal(opts(s.VirusTotalURL, s.VirusTotalKey)),
		NewURLScan(opts(s.URLScanURL, s.URLScanKey)),
		NewOTX(opts(s.OTXURL, s.OTXKey)),
	}
}
