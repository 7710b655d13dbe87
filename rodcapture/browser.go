package rodcapture

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// BrowserConfig controls how the capture page is obtained.
type BrowserConfig struct {
	// Remote is the WebSocket URL of an external Chromium instance.
	// Empty = launch a local headless one.
	Remote string
	// Stealth applies anti-detection evasions to the page.
	Stealth bool
	Logger  *slog.Logger
}

// Connect attaches to (or launches) a Chromium instance.
func Connect(cfg BrowserConfig) (*rod.Browser, error) {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	wsURL := cfg.Remote
	if wsURL == "" {
		l := launcher.New().Headless(true).
			Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("rodcapture: launch: %w", err)
		}
		wsURL = u
		log.Info("rodcapture: launched local chromium", "url", wsURL)
	} else {
		log.Info("rodcapture: connecting to remote", "url", wsURL)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("rodcapture: connect: %w", err)
	}
	return b, nil
}

// OpenPage navigates a fresh tab to pageURL and waits for load.
func OpenPage(ctx context.Context, b *rod.Browser, pageURL string, useStealth bool) (*rod.Page, error) {
	var page *rod.Page
	var err error

	if useStealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("rodcapture: create tab: %w", err)
	}

	navCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		page.Close()
		return nil, fmt.Errorf("rodcapture: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		return nil, fmt.Errorf("rodcapture: wait load %s: %w", pageURL, err)
	}
	return page, nil
}
