package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type exportFormat string

const (
	exportPNG exportFormat = "png"
	exportPDF exportFormat = "pdf"

	maxExportBytes   = 600_000
	exportKeyHeader  = "x-export-key"
	exportTimeout    = 30 * time.Second
	exportIdleWait   = 2 * time.Second
	exportViewportW  = 1400
	exportViewportH  = 900
	exportScale      = 2
	exportMarginMM   = 12
	newsprintMarker  = `id="newsprint"`
	newsprintElement = "#newsprint"
)

func (f exportFormat) contentType() string {
	if f == exportPDF {
		return "application/pdf"
	}
	return "image/png"
}

func (f exportFormat) filename() string {
	return "shift_report." + string(f)
}

// newsprintExporter turns a newsprint HTML page into an image or a PDF.
type newsprintExporter interface {
	Export(ctx context.Context, html string, format exportFormat) ([]byte, error)
}

// rodExporter drives headless Chrome. It connects to ControlURL when set and
// launches a local browser otherwise, on first use.
type rodExporter struct {
	mu         sync.Mutex
	controlURL string
	browser    *rod.Browser
}

func newRodExporter(controlURL string) *rodExporter {
	return &rodExporter{controlURL: strings.TrimSpace(controlURL)}
}

func (e *rodExporter) connect() (*rod.Browser, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.browser != nil {
		return e.browser, nil
	}
	u := e.controlURL
	if u == "" {
		launched, err := launcher.New().Headless(true).Launch()
		if err != nil {
			return nil, fmt.Errorf("launch chrome: %w", err)
		}
		u = launched
	}
	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}
	e.browser = browser
	return browser, nil
}

func mmToInches(mm float64) *float64 {
	v := mm / 25.4
	return &v
}

func (e *rodExporter) Export(ctx context.Context, html string, format exportFormat) ([]byte, error) {
	browser, err := e.connect()
	if err != nil {
		return nil, err
	}
	page, err := browser.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	defer func() { _ = page.Close() }()

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             exportViewportW,
		Height:            exportViewportH,
		DeviceScaleFactor: exportScale,
		Mobile:            false,
	}).Call(page); err != nil {
		return nil, fmt.Errorf("set viewport: %w", err)
	}
	if err := page.SetDocumentContent(html); err != nil {
		return nil, fmt.Errorf("set content: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait load: %w", err)
	}
	_ = page.WaitIdle(exportIdleWait)

	if format == exportPNG {
		el, err := page.Element(newsprintElement)
		if err != nil {
			return nil, fmt.Errorf("find %s: %w", newsprintElement, err)
		}
		png, err := el.Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
		if err != nil {
			return nil, fmt.Errorf("screenshot: %w", err)
		}
		return png, nil
	}

	margin := mmToInches(exportMarginMM)
	stream, err := page.PDF(&proto.PagePrintToPDF{
		PrintBackground:   true,
		PreferCSSPageSize: true,
		MarginTop:         margin,
		MarginRight:       margin,
		MarginBottom:      margin,
		MarginLeft:        margin,
	})
	if err != nil {
		return nil, fmt.Errorf("print pdf: %w", err)
	}
	pdf, err := io.ReadAll(stream)
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}
	return pdf, nil
}

func (e *rodExporter) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.browser == nil {
		return nil
	}
	err := e.browser.Close()
	e.browser = nil
	return err
}

type exportRequest struct {
	HTML string `json:"html"`
}

// newExportHandler serves POST /api/newsprint.{png,pdf}. An empty key skips
// the header check.
func newExportHandler(exporter newsprintExporter, format exportFormat, key string, limiter *rate.Limiter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if key != "" && r.Header.Get(exportKeyHeader) != key {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if limiter != nil && !limiter.Allow() {
			http.Error(w, "too many exports, try again shortly", http.StatusTooManyRequests)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxExportBytes+1))
		if err != nil {
			http.Error(w, "read body", http.StatusBadRequest)
			return
		}
		if len(body) > maxExportBytes {
			http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
			return
		}
		var req exportRequest
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if !strings.Contains(req.HTML, newsprintMarker) {
			http.Error(w, "missing #newsprint in html", http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), exportTimeout)
		defer cancel()
		out, err := exporter.Export(ctx, req.HTML, format)
		if err != nil {
			logger.Error("newsprint export failed", zap.String("format", string(format)), zap.Error(err))
			status := http.StatusInternalServerError
			if errors.Is(err, context.DeadlineExceeded) {
				status = http.StatusGatewayTimeout
			}
			http.Error(w, "render failed", status)
			return
		}
		w.Header().Set("Content-Type", format.contentType())
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", format.filename()))
		w.Header().Set("Cache-Control", "no-store")
		_, _ = w.Write(out)
	}
}

func newExportLimiter(every time.Duration) *rate.Limiter {
	if every <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(every), 1)
}
