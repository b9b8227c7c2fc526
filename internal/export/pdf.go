package export

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// browserCandidates are looked up on PATH when no explicit binary is set
var browserCandidates = []string{"chromium-browser", "chromium", "google-chrome", "headless-shell"}

// PDFConverter prints rendered HTML through a headless browser that lives
// only for the duration of one conversion.
type PDFConverter struct {
	// ExecPath overrides the browser binary lookup
	ExecPath string
	// Timeout bounds one conversion; zero means 30 seconds
	Timeout time.Duration
}

// NewPDFConverter creates a converter using the given browser binary (may be empty)
func NewPDFConverter(execPath string, timeout time.Duration) *PDFConverter {
	return &PDFConverter{ExecPath: execPath, Timeout: timeout}
}

// browserScope owns one browser process. Release tears it down and is safe
// to call more than once.
type browserScope struct {
	ctx     context.Context
	cancels []context.CancelFunc
	once    sync.Once
}

func (s *browserScope) Release() {
	s.once.Do(func() {
		// close the browser gracefully first, then unwind the allocator
		_ = chromedp.Cancel(s.ctx)
		for i := len(s.cancels) - 1; i >= 0; i-- {
			s.cancels[i]()
		}
	})
}

func (c *PDFConverter) browserPath() (string, error) {
	if c.ExecPath != "" {
		path, err := exec.LookPath(c.ExecPath)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrPDFDependencyMissing, c.ExecPath, err)
		}
		return path, nil
	}
	for _, name := range browserCandidates {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: chromium not installed", ErrPDFDependencyMissing)
}

// acquireBrowser starts a fresh headless browser. The caller must Release
// the scope on every path.
func (c *PDFConverter) acquireBrowser(parent context.Context) (*browserScope, error) {
	path, err := c.browserPath()
	if err != nil {
		return nil, err
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	scope := &browserScope{}
	ctx, cancel := context.WithTimeout(parent, timeout)
	scope.cancels = append(scope.cancels, cancel)

	// Chrome options for headless mode in container
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(path),
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-extensions", true),
	)
	allocCtx, cancel := chromedp.NewExecAllocator(ctx, opts...)
	scope.cancels = append(scope.cancels, cancel)

	taskCtx, cancel := chromedp.NewContext(allocCtx)
	scope.cancels = append(scope.cancels, cancel)
	scope.ctx = taskCtx

	// launch now so a broken binary fails here rather than mid-render
	if err := chromedp.Run(taskCtx); err != nil {
		scope.Release()
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	return scope, nil
}

// Convert renders html to a Letter-size PDF. The page is captured once the
// navigation reaches network idle.
func (c *PDFConverter) Convert(ctx context.Context, html string) ([]byte, error) {
	scope, err := c.acquireBrowser(ctx)
	if err != nil {
		return nil, err
	}
	defer scope.Release()

	idle := networkIdle(scope.ctx)

	// url.QueryEscape uses + for spaces which is wrong for data URLs
	dataURL := "data:text/html;charset=utf-8," + percentEncodeForDataURL(html)

	var pdfData []byte
	err = chromedp.Run(scope.ctx,
		page.SetLifecycleEventsEnabled(true),
		chromedp.Navigate(dataURL),
		chromedp.ActionFunc(func(ctx context.Context) error {
			select {
			case <-idle:
				return nil
			case <-ctx.Done():
				return fmt.Errorf("wait for network idle: %w", ctx.Err())
			}
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			pdfData, _, err = page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(8.5). // Letter size
				WithPaperHeight(11.0).
				WithMarginTop(0).
				WithMarginBottom(0).
				WithMarginLeft(0).
				WithMarginRight(0).
				WithPreferCSSPageSize(true).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("chrome pdf generation failed: %w", err)
	}
	return pdfData, nil
}

// networkIdle returns a channel closed when the most recent navigation's
// loader reports the networkIdle lifecycle event.
func networkIdle(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	var (
		mu       sync.Mutex
		loader   cdp.LoaderID
		signaled bool
	)
	chromedp.ListenTarget(ctx, func(ev interface{}) {
		e, ok := ev.(*page.EventLifecycleEvent)
		if !ok {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		switch e.Name {
		case "init":
			loader = e.LoaderID
		case "networkIdle":
			if !signaled && loader != "" && e.LoaderID == loader {
				signaled = true
				close(done)
			}
		}
	})
	return done
}

// percentEncodeForDataURL encodes a string for use in a data URL
// Unlike url.QueryEscape, this properly encodes spaces as %20 for data URLs
func percentEncodeForDataURL(s string) string {
	var result strings.Builder
	result.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z',
			r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9',
			r == '-', r == '_', r == '.', r == '~':
			// Unreserved characters per RFC 3986
			result.WriteRune(r)
		case r == ' ':
			result.WriteString("%20")
		default:
			for _, b := range []byte(string(r)) {
				fmt.Fprintf(&result, "%%%02X", b)
			}
		}
	}
	return result.String()
}

// sanitizeFilename creates a safe filename from a title
func sanitizeFilename(title string) string {
	var b strings.Builder
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('-')
		case r == '-', r == '_':
			b.WriteRune(r)
		}
	}

	result := b.String()
	if len(result) > 50 {
		result = result[:50]
	}
	if result == "" {
		result = "document"
	}
	return result
}
