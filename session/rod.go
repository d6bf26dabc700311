package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"

	"github.com/use-agent/pricewatch/config"
)

// RodDriver is a Driver backed by its own Chromium process. Each session
// launches a separate browser so a crash never leaks into the next one.
type RodDriver struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	router   *rod.HijackRouter
	crashed  atomic.Bool
}

// NewRodFactory returns a Factory launching one browser per session.
func NewRodFactory(browserCfg config.BrowserConfig, navCfg config.NavigatorConfig) Factory {
	return func(ctx context.Context) (Driver, error) {
		return launchRod(ctx, browserCfg, navCfg)
	}
}

func launchRod(ctx context.Context, browserCfg config.BrowserConfig, navCfg config.NavigatorConfig) (*RodDriver, error) {
	l := launcher.New().
		Context(ctx).
		Headless(browserCfg.Headless).
		NoSandbox(browserCfg.NoSandbox)

	if browserCfg.BrowserBin != "" {
		l = l.Bin(browserCfg.BrowserBin)
	}
	if browserCfg.Proxy != "" {
		l = l.Proxy(browserCfg.Proxy)
	}

	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "TranslateUI")
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	d := &RodDriver{launcher: l}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	d.browser = browser

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("open page: %w", err)
	}
	d.page = page

	if browserCfg.Stealth {
		if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
			slog.Warn("stealth injection failed, proceeding without stealth", "error", err)
		}
	}

	if navCfg.AcceptLanguage != "" {
		_ = proto.NetworkSetExtraHTTPHeaders{
			Headers: proto.NetworkHeaders{"Accept-Language": gson.New(navCfg.AcceptLanguage)},
		}.Call(page)
	}

	d.router = blockRequests(page, navCfg.BlockedResourceTypes, navCfg.BlockAds)

	if err := (proto.InspectorEnable{}).Call(page); err != nil {
		slog.Debug("inspector domain unavailable, crash events disabled", "error", err)
	} else {
		go page.EachEvent(func(e *proto.InspectorTargetCrashed) {
			d.crashed.Store(true)
		})()
	}

	slog.Debug("browser session launched", "controlURL", controlURL)
	return d, nil
}

// Page exposes the underlying rod page for DOM evaluation.
func (d *RodDriver) Page() *rod.Page { return d.page }

// Navigate loads url and waits for the load event.
func (d *RodDriver) Navigate(ctx context.Context, url string) error {
	p := d.page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return err
	}
	return p.WaitLoad()
}

// StopLoading cancels whatever the page is still fetching.
func (d *RodDriver) StopLoading(ctx context.Context) error {
	return proto.PageStopLoading{}.Call(d.page.Context(ctx))
}

// Probe evaluates a trivial expression in the page.
func (d *RodDriver) Probe(ctx context.Context) error {
	_, err := d.page.Context(ctx).Eval(`() => location.href`)
	return err
}

// Crashed reports whether a renderer crash event was received.
func (d *RodDriver) Crashed() bool { return d.crashed.Load() }

// Close stops interception and kills the browser process.
func (d *RodDriver) Close() error {
	var firstErr error
	if d.router != nil {
		if err := d.router.Stop(); err != nil {
			firstErr = err
		}
	}
	if d.browser != nil {
		if err := d.browser.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	d.launcher.Kill()
	return firstErr
}
