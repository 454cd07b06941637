package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/browsermcp/pkg/logging"
	"github.com/entrhq/browsermcp/pkg/tools/browser"
)

// Default browser settings.
const (
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 720
	DefaultActionTimeout  = 30000.0 // milliseconds
)

// BrowserOptions configures Launch.
type BrowserOptions struct {
	Headless bool

	// Install downloads the Playwright driver and Chromium when missing
	Install bool

	ViewportWidth  int
	ViewportHeight int

	// ActionTimeout is the default Playwright timeout in milliseconds
	ActionTimeout float64

	Logger *logging.Logger
}

var _ Actions = (*Browser)(nil)

// Browser drives one Chromium page through Playwright and implements Actions.
type Browser struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page

	console *consoleBuffer
	logger  *logging.Logger

	mu        sync.Mutex
	snapshots int
}

// Launch starts Playwright, a Chromium instance and one page.
func Launch(opts BrowserOptions) (*Browser, error) {
	if opts.ViewportWidth <= 0 || opts.ViewportHeight <= 0 {
		opts.ViewportWidth, opts.ViewportHeight = DefaultViewportWidth, DefaultViewportHeight
	}
	if opts.ActionTimeout <= 0 {
		opts.ActionTimeout = DefaultActionTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}

	// Driver output would interleave with the CLI's own stderr messages.
	runOpts := &playwright.RunOptions{
		Browsers: []string{"chromium"},
		Verbose:  false,
		Stdout:   io.Discard,
		Stderr:   io.Discard,
	}
	if opts.Install {
		if err := playwright.Install(runOpts); err != nil {
			return nil, fmt.Errorf("failed to install playwright: %w", err)
		}
	}

	pw, err := playwright.Run(runOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	chromium, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	bctx, err := chromium.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{Width: opts.ViewportWidth, Height: opts.ViewportHeight},
	})
	if err != nil {
		_ = chromium.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("failed to create context: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		_ = chromium.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	page.SetDefaultTimeout(opts.ActionTimeout)

	b := &Browser{
		pw:      pw,
		browser: chromium,
		context: bctx,
		page:    page,
		console: newConsoleBuffer(MaxConsoleEntries),
		logger:  opts.Logger,
	}
	page.OnConsole(b.recordConsole)
	return b, nil
}

// Close shuts the page, browser and Playwright driver down.
func (b *Browser) Close() error {
	var errs []error
	if err := b.page.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := b.context.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := b.browser.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := b.pw.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
	}
	return errors.Join(errs...)
}

func (b *Browser) recordConsole(msg playwright.ConsoleMessage) {
	entry := browser.ConsoleEntry{
		Type:      msg.Type(),
		Text:      msg.Text(),
		Timestamp: time.Now().UnixMilli(),
	}
	if loc := msg.Location(); loc != nil && loc.URL != "" {
		entry.Location = fmt.Sprintf("%s:%d:%d", loc.URL, loc.LineNumber, loc.ColumnNumber)
	}
	b.console.add(entry)
}

func (b *Browser) Navigate(_ context.Context, url string) error {
	b.logger.Debugf("navigate %s", url)
	if _, err := b.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	}); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}

func (b *Browser) GoBack(context.Context) error {
	if _, err := b.page.GoBack(); err != nil {
		return fmt.Errorf("go back failed: %w", err)
	}
	return nil
}

func (b *Browser) GoForward(context.Context) error {
	if _, err := b.page.GoForward(); err != nil {
		return fmt.Errorf("go forward failed: %w", err)
	}
	return nil
}

// Snapshot assigns fresh refs and renders the page tree as YAML. Refs from
// earlier snapshots stop resolving.
func (b *Browser) Snapshot(context.Context) (string, error) {
	b.mu.Lock()
	b.snapshots++
	prefix := fmt.Sprintf("s%de", b.snapshots)
	b.mu.Unlock()

	raw, err := b.page.Evaluate(snapshotScript, prefix)
	if err != nil {
		return "", fmt.Errorf("snapshot failed: %w", err)
	}
	text, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("snapshot failed: unexpected result %T", raw)
	}

	nodes, err := parseSnapshot(text)
	if err != nil {
		return "", err
	}
	return renderSnapshot(nodes)
}

func (b *Browser) Click(_ context.Context, ref string) error {
	loc, err := b.locate(ref)
	if err != nil {
		return err
	}
	if err := loc.Click(); err != nil {
		return fmt.Errorf("click failed: %w", err)
	}
	return nil
}

func (b *Browser) Hover(_ context.Context, ref string) error {
	loc, err := b.locate(ref)
	if err != nil {
		return err
	}
	if err := loc.Hover(); err != nil {
		return fmt.Errorf("hover failed: %w", err)
	}
	return nil
}

func (b *Browser) Type(_ context.Context, ref, text string, submit bool) error {
	loc, err := b.locate(ref)
	if err != nil {
		return err
	}
	if err := loc.Fill(text); err != nil {
		return fmt.Errorf("type failed: %w", err)
	}
	if submit {
		if err := loc.Press("Enter"); err != nil {
			return fmt.Errorf("submit failed: %w", err)
		}
	}
	return nil
}

func (b *Browser) SelectOption(_ context.Context, ref string, values []string) error {
	loc, err := b.locate(ref)
	if err != nil {
		return err
	}
	if _, err := loc.SelectOption(playwright.SelectOptionValues{Values: &values}); err != nil {
		return fmt.Errorf("select option failed: %w", err)
	}
	return nil
}

func (b *Browser) Drag(_ context.Context, startRef, endRef string) error {
	source, err := b.locate(startRef)
	if err != nil {
		return err
	}
	target, err := b.locate(endRef)
	if err != nil {
		return err
	}
	if err := source.DragTo(target); err != nil {
		return fmt.Errorf("drag failed: %w", err)
	}
	return nil
}

func (b *Browser) PressKey(_ context.Context, key string) error {
	if err := b.page.Keyboard().Press(key); err != nil {
		return fmt.Errorf("press key failed: %w", err)
	}
	return nil
}

func (b *Browser) Screenshot(context.Context) ([]byte, error) {
	png, err := b.page.Screenshot(playwright.PageScreenshotOptions{
		Type: playwright.ScreenshotTypePng,
	})
	if err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}
	return png, nil
}

func (b *Browser) ConsoleLogs(context.Context) ([]browser.ConsoleEntry, error) {
	return b.console.snapshot(), nil
}

func (b *Browser) URL(context.Context) (string, error) {
	return b.page.URL(), nil
}

func (b *Browser) Title(context.Context) (string, error) {
	title, err := b.page.Title()
	if err != nil {
		return "", fmt.Errorf("title failed: %w", err)
	}
	return title, nil
}

// locate resolves a snapshot ref to exactly one element.
func (b *Browser) locate(ref string) (playwright.Locator, error) {
	selector, err := refSelector(ref)
	if err != nil {
		return nil, err
	}
	loc := b.page.Locator(selector)
	count, err := loc.Count()
	if err != nil {
		return nil, fmt.Errorf("resolve ref %s: %w", ref, err)
	}
	if count == 0 {
		return nil, fmt.Errorf("element ref %s not found: the page changed since the last snapshot", ref)
	}
	return loc.First(), nil
}
