package export

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/dtroode/membership-server/internal/logger"
	"github.com/dtroode/membership-server/internal/model"
)

// A4 paper size in inches, portrait.
const (
	a4WidthInches  = 8.27
	a4HeightInches = 11.69
)

// BrowserConfig locates the Chrome instance used for printing.
type BrowserConfig struct {
	// ControlURL connects to a running Chrome. When empty a headless Chrome is launched.
	ControlURL string
	// Bin is the Chrome binary to launch. When empty rod finds or downloads one.
	Bin string
}

var _ model.DocumentRenderer = (*Renderer)(nil)

// Renderer prints HTML documents to PDF with headless Chrome. It returns
// model.ErrRendererUnavailable until Start has connected a browser.
type Renderer struct {
	cfg    BrowserConfig
	logger *logger.Logger

	mu       sync.RWMutex
	browser  *rod.Browser
	launcher *launcher.Launcher
}

func NewRenderer(cfg BrowserConfig, logger *logger.Logger) *Renderer {
	return &Renderer{cfg: cfg, logger: logger}
}

// Start connects to or launches Chrome. It is meant to run in the background
// while the server already accepts requests.
func (r *Renderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browser != nil {
		return nil
	}

	controlURL := r.cfg.ControlURL
	var l *launcher.Launcher
	if controlURL == "" {
		l = launcher.New().Context(ctx).Headless(true)
		if r.cfg.Bin != "" {
			l = l.Bin(r.cfg.Bin)
		}
		url, err := l.Launch()
		if err != nil {
			return fmt.Errorf("failed to launch chrome: %w", err)
		}
		controlURL = url
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		if l != nil {
			l.Kill()
			l.Cleanup()
		}
		return fmt.Errorf("failed to connect to chrome: %w", err)
	}

	r.browser = browser
	r.launcher = l
	r.logger.Info("PDF renderer: browser connected", "launched", l != nil)

	return nil
}

// Ready reports whether documents can be rendered.
func (r *Renderer) Ready() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.browser != nil
}

func (r *Renderer) RenderPDF(ctx context.Context, html []byte, opts model.PDFOptions) ([]byte, error) {
	r.mu.RLock()
	browser := r.browser
	r.mu.RUnlock()
	if browser == nil {
		return nil, model.ErrRendererUnavailable
	}

	page, err := browser.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			r.logger.Warn("PDF renderer: failed to close page", "error", err.Error())
		}
	}()

	if err := page.SetDocumentContent(string(html)); err != nil {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("failed to wait for document: %w", err)
	}

	stream, err := page.PDF(printRequest(opts))
	if err != nil {
		return nil, fmt.Errorf("failed to print document: %w", err)
	}
	defer stream.Close()

	data, err := io.ReadAll(stream)
	if err != nil {
		return nil, fmt.Errorf("failed to read printed document: %w", err)
	}

	r.logger.Debug("PDF renderer: document printed",
		"filename", opts.Filename,
		"bytes", len(data))

	return data, nil
}

// Close disconnects the browser and stops it if it was launched by Start.
func (r *Renderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browser == nil {
		return nil
	}

	err := r.browser.Close()
	if r.launcher != nil {
		r.launcher.Cleanup()
	}
	r.browser = nil
	r.launcher = nil

	if err != nil {
		return fmt.Errorf("failed to close browser: %w", err)
	}
	return nil
}

func printRequest(opts model.PDFOptions) *proto.PagePrintToPDF {
	margin := opts.MarginInches
	req := &proto.PagePrintToPDF{
		Landscape:       opts.Landscape,
		PrintBackground: true,
		MarginTop:       &margin,
		MarginBottom:    &margin,
		MarginLeft:      &margin,
		MarginRight:     &margin,
	}
	if opts.Format == model.PaperA4 {
		width, height := a4WidthInches, a4HeightInches
		req.PaperWidth = &width
		req.PaperHeight = &height
	}
	if opts.Scale > 0 {
		// Chrome accepts print scales between 0.1 and 2.
		scale := min(max(opts.Scale, 0.1), 2)
		req.Scale = &scale
	}
	return req
}
