package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

var _ Capability = (*RodCapability)(nil)

// RodCapability implements Capability over go-rod/rod, the concrete
// JS-rendering browser driver behind the capability interface.
type RodCapability struct {
	browser *rod.Browser
	page    *rod.Page
}

// NewRodCapability launches (or attaches to, when controlURL != "") a
// browser instance and returns a fresh Capability. headless defaults to
// true; pass false only for local debugging.
func NewRodCapability(controlURL string, headless bool) (*RodCapability, error) {
	var b *rod.Browser
	if controlURL != "" {
		b = rod.New().ControlURL(controlURL)
	} else {
		u := launcher.New().Headless(headless).MustLaunch()
		b = rod.New().ControlURL(u)
	}
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	page, err := b.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	return &RodCapability{browser: b, page: page}, nil
}

func (c *RodCapability) Navigate(ctx context.Context, url string, timeout time.Duration) (NavigateResult, error) {
	start := time.Now()
	page := c.page.Context(ctx).Timeout(timeout)

	var redirects []string
	stop := page.Browser().EachEvent(func(e *proto.NetworkResponseReceived) {
		if e.Response.Status >= 300 && e.Response.Status < 400 {
			redirects = append(redirects, e.Response.URL)
		}
	})
	defer stop()

	if err := page.Navigate(url); err != nil {
		return NavigateResult{}, fmt.Errorf("navigate: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return NavigateResult{}, fmt.Errorf("wait load: %w", err)
	}
	if err := page.WaitDOMStable(500*time.Millisecond, 0); err != nil {
		// Non-fatal: some pages never fully quiesce; proceed with what loaded.
		_ = err
	}

	info, err := page.Info()
	statusCode := 200
	finalURL := url
	if err == nil {
		finalURL = info.URL
	}

	return NavigateResult{
		StatusCode: statusCode,
		FinalURL:   finalURL,
		Redirects:  redirects,
		LoadTimeMs: time.Since(start).Milliseconds(),
	}, nil
}

func (c *RodCapability) QuerySelector(ctx context.Context, selector string) (ElementHandle, error) {
	el, err := c.page.Context(ctx).Timeout(2 * time.Second).Element(selector)
	if err != nil {
		return nil, err
	}
	return el, nil
}

func (c *RodCapability) ElementValue(ctx context.Context, handle ElementHandle) (string, error) {
	el, ok := handle.(*rod.Element)
	if !ok || el == nil {
		return "", fmt.Errorf("invalid element handle")
	}
	tag, err := el.Eval(`() => this.tagName ? this.tagName.toLowerCase() : ''`)
	if err == nil && tag != nil {
		switch tag.Value.String() {
		case "input":
			typ, _ := el.Attribute("type")
			if typ != nil && (*typ == "checkbox" || *typ == "radio") {
				checked, _ := el.Property("checked")
				if checked.Bool() {
					return "true", nil
				}
				return "false", nil
			}
			v, err := el.Property("value")
			if err != nil {
				return "", err
			}
			return v.String(), nil
		case "select":
			v, err := el.Property("value")
			if err != nil {
				return "", err
			}
			return v.String(), nil
		case "textarea":
			v, err := el.Property("value")
			if err != nil {
				return "", err
			}
			return v.String(), nil
		}
	}
	text, err := el.Text()
	if err != nil {
		return "", err
	}
	return text, nil
}

func (c *RodCapability) ElementBounds(ctx context.Context, handle ElementHandle) (x, y, w, h float64, err error) {
	el, ok := handle.(*rod.Element)
	if !ok || el == nil {
		return 0, 0, 0, 0, fmt.Errorf("invalid element handle")
	}
	shape, err := el.Shape()
	if err != nil || len(shape.Quads) == 0 {
		return 0, 0, 0, 0, err
	}
	box := shape.Box()
	return box.X, box.Y, box.Width, box.Height, nil
}

func (c *RodCapability) ScreenshotFull(ctx context.Context) ([]byte, error) {
	return c.page.Context(ctx).Screenshot(true, nil)
}

func (c *RodCapability) ScreenshotElement(ctx context.Context, handle ElementHandle, marginPx int) ([]byte, error) {
	el, ok := handle.(*rod.Element)
	if !ok || el == nil {
		return nil, fmt.Errorf("invalid element handle")
	}
	shape, err := el.Shape()
	if err != nil || len(shape.Quads) == 0 {
		return c.ScreenshotFull(ctx)
	}
	box := shape.Box()
	clip := &proto.PageViewport{
		X:      box.X - float64(marginPx),
		Y:      box.Y - float64(marginPx),
		Width:  box.Width + float64(2*marginPx),
		Height: box.Height + float64(2*marginPx),
		Scale:  1,
	}
	return c.page.Context(ctx).Screenshot(true, &proto.PageCaptureScreenshot{Clip: clip})
}

func (c *RodCapability) DOMSnapshot(ctx context.Context) (string, error) {
	return c.page.Context(ctx).HTML()
}

func (c *RodCapability) Close() error {
	if c.page != nil {
		_ = c.page.Close()
	}
	if c.browser != nil {
		return c.browser.Close()
	}
	return nil
}
