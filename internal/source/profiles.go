package source

import (
	"math/rand"
	"net/http"
	"sync"
)

// profile is a coherent set of browser identity headers. Rotating them
// lowers the chance of the source blocking the poller; correctness never
// depends on it.
type profile struct {
	userAgent      string
	accept         string
	acceptLanguage string
	referer        string
}

var profiles = []profile{
	{ // Chrome on Windows 10
		userAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		accept:         "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8",
		acceptLanguage: "uk-UA,uk;q=0.9,en-US;q=0.8,en;q=0.7",
		referer:        "https://www.google.com.ua/",
	},
	{ // Firefox on Windows 10
		userAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
		accept:         "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
		acceptLanguage: "uk-UA,uk;q=0.8,en-US;q=0.5,en;q=0.3",
		referer:        "https://www.google.com.ua/",
	},
	{ // Edge on Windows 11
		userAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0",
		accept:         "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,image/apng,*/*;q=0.8",
		acceptLanguage: "uk,en-US;q=0.9,en;q=0.8",
		referer:        "https://www.bing.com/",
	},
	{ // Chrome on Android
		userAgent:      "Mozilla/5.0 (Linux; Android 13; SM-S918B) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.6099.144 Mobile Safari/537.36",
		accept:         "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8",
		acceptLanguage: "uk-UA,uk;q=0.9,en;q=0.8",
		referer:        "https://www.google.com/",
	},
	{ // Safari on macOS
		userAgent:      "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_2) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Safari/605.1.15",
		accept:         "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		acceptLanguage: "uk-UA,uk;q=0.9",
		referer:        "https://www.google.com.ua/",
	},
}

// profilePool hands out profiles so that two consecutive picks never return
// the same one.
type profilePool struct {
	mu   sync.Mutex
	last int
}

func newProfilePool() *profilePool { return &profilePool{last: -1} }

func (p *profilePool) next() profile {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx := 0
	if len(profiles) > 1 {
		for {
			idx = rand.Intn(len(profiles))
			if idx != p.last {
				break
			}
		}
	}
	p.last = idx
	return profiles[idx]
}

func (pr profile) apply(req *http.Request) {
	req.Header.Set("User-Agent", pr.userAgent)
	req.Header.Set("Accept", pr.accept)
	req.Header.Set("Accept-Language", pr.acceptLanguage)
	req.Header.Set("Referer", pr.referer)
	// Accept-Encoding is left to the transport so gzip stays transparent.
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-Site", "cross-site")
	req.Header.Set("Sec-Fetch-User", "?1")
	req.Header.Set("Cache-Control", "max-age=0")
}
