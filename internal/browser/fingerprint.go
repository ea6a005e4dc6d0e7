package browser

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// FingerprintFunc customizes a freshly created handle. It runs once per
// handle at creation time, never per attempt, so a handle presents one
// consistent identity for its whole lifetime.
type FingerprintFunc func(tabCtx context.Context) error

type viewport struct {
	width  int64
	height int64
}

var (
	fingerprintViewports = []viewport{
		{1920, 1080},
		{1680, 1050},
		{1536, 864},
		{1440, 900},
		{1366, 768},
	}
	fingerprintAgents = []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	}
	fingerprintLocales = []struct {
		lang string
		tz   string
	}{
		{"en-US", "America/New_York"},
		{"en-US", "America/Chicago"},
		{"en-GB", "Europe/London"},
		{"en-CA", "America/Toronto"},
	}
)

// navigatorPatch hides the usual automation tells before any page script runs.
const navigatorPatch = `
Object.defineProperty(navigator, 'webdriver', {get: () => undefined});
Object.defineProperty(navigator, 'plugins', {get: () => [1, 2, 3, 4]});
Object.defineProperty(navigator, 'languages', {get: () => ['%s', 'en']});
window.chrome = window.chrome || {runtime: {}};
`

// RandomFingerprint returns a FingerprintFunc that draws a random viewport,
// user agent, locale, and timezone from rng and installs a navigator patch
// that persists across navigations.
func RandomFingerprint(rng *rand.Rand) FingerprintFunc {
	return func(tabCtx context.Context) error {
		vp := fingerprintViewports[rng.Intn(len(fingerprintViewports))]
		ua := fingerprintAgents[rng.Intn(len(fingerprintAgents))]
		loc := fingerprintLocales[rng.Intn(len(fingerprintLocales))]

		actions := chromedp.Tasks{
			emulation.SetUserAgentOverride(ua).WithAcceptLanguage(loc.lang),
			emulation.SetDeviceMetricsOverride(vp.width, vp.height, 1, false),
			emulation.SetTimezoneOverride(loc.tz),
			chromedp.ActionFunc(func(ctx context.Context) error {
				script := fmt.Sprintf(navigatorPatch, loc.lang)
				_, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx)
				return err
			}),
		}
		if err := chromedp.Run(tabCtx, actions); err != nil {
			return fmt.Errorf("apply fingerprint: %w", err)
		}
		return nil
	}
}
