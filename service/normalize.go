package service

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/avocatt/accident-analyzer/config"
	"github.com/avocatt/accident-analyzer/model"
	"github.com/avocatt/accident-analyzer/pkg/logger"
	pdf "github.com/ledongthuc/pdf"
	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"
)

// promptTextLimit bounds how much extracted PDF text rides along with the
// page images in the inference request.
const promptTextLimit = 3000

// Normalizer converts a submission into dimension-bounded page images ready
// for multimodal inference. PDF primaries contribute at most MaxPDFPages
// pages; rasters are downscaled so the longest edge fits MaxEdgePixels,
// never upscaled.
type Normalizer struct {
	maxEdge     int
	maxPDFPages int
	renderDPI   int
	jpegQuality int

	// pdftoppm (poppler-utils) renders PDF pages to PNG. Resolved at
	// construction so a missing binary surfaces at startup, not mid-run.
	pdftoppmPath string
}

func NewNormalizer(cfg *config.NormalizeConfig) *Normalizer {
	return &Normalizer{
		maxEdge:      cfg.MaxEdgePixels,
		maxPDFPages:  cfg.MaxPDFPages,
		renderDPI:    cfg.RenderDPI,
		jpegQuality:  cfg.JPEGQuality,
		pdftoppmPath: "pdftoppm",
	}
}

// AssertReady verifies the external render binary is available.
func (n *Normalizer) AssertReady() error {
	if _, err := exec.LookPath(n.pdftoppmPath); err != nil {
		return fmt.Errorf("missing required binary %q in PATH: %w", n.pdftoppmPath, err)
	}
	return nil
}

// Normalize produces the ordered normalized view of a submission. Photos are
// normalized concurrently but land in submission order. Pure CPU work apart
// from the pdftoppm render; no network calls.
func (n *Normalizer) Normalize(ctx context.Context, sub *model.Submission) (*model.NormalizedDocument, error) {
	doc := &model.NormalizedDocument{}

	if isPDF(&sub.Primary) {
		pages, text, err := n.normalizePDF(ctx, &sub.Primary)
		if err != nil {
			return nil, &model.NormalizationError{Source: sub.Primary.Filename, Err: err}
		}
		doc.ReportPages = pages
		doc.ReportText = text
	} else {
		page, err := n.normalizeImage(&sub.Primary, "report", 1)
		if err != nil {
			return nil, &model.NormalizationError{Source: sub.Primary.Filename, Err: err}
		}
		doc.ReportPages = []model.NormalizedPage{*page}
	}

	if len(sub.Photos) == 0 {
		return doc, nil
	}

	// Photos are independent; normalize them in parallel and keep
	// submission order by writing into fixed slots.
	doc.PhotoPages = make([]model.NormalizedPage, len(sub.Photos))
	g, gctx := errgroup.WithContext(ctx)
	for i := range sub.Photos {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			page, err := n.normalizeImage(&sub.Photos[i], "photo", i+1)
			if err != nil {
				return &model.NormalizationError{Source: sub.Photos[i].Filename, Err: err}
			}
			doc.PhotoPages[i] = *page
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return doc, nil
}

func isPDF(f *model.FileUpload) bool {
	if strings.Contains(strings.ToLower(f.ContentType), "pdf") {
		return true
	}
	return bytes.HasPrefix(f.Data, []byte("%PDF"))
}

// normalizePDF extracts text and renders the first maxPDFPages pages to
// bounded PNG rasters. Multi-page reports beyond the limit are deliberately
// truncated: the joint accident report form is two pages.
func (n *Normalizer) normalizePDF(ctx context.Context, f *model.FileUpload) ([]model.NormalizedPage, string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(f.Data), int64(len(f.Data)))
	if err != nil {
		return nil, "", fmt.Errorf("open pdf: %w", err)
	}

	pageCount := reader.NumPage()
	if pageCount < 1 {
		return nil, "", fmt.Errorf("pdf has no pages")
	}

	text := extractPDFText(reader, n.maxPDFPages)

	scratch, err := os.MkdirTemp("", "report-render-*")
	if err != nil {
		return nil, "", fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	pdfPath := filepath.Join(scratch, "report.pdf")
	if err := os.WriteFile(pdfPath, f.Data, 0o600); err != nil {
		return nil, "", fmt.Errorf("write scratch pdf: %w", err)
	}

	lastPage := pageCount
	if lastPage > n.maxPDFPages {
		lastPage = n.maxPDFPages
	}

	outPrefix := filepath.Join(scratch, "page")
	cmd := exec.CommandContext(ctx, n.pdftoppmPath,
		"-png",
		"-r", fmt.Sprintf("%d", n.renderDPI),
		"-f", "1",
		"-l", fmt.Sprintf("%d", lastPage),
		pdfPath, outPrefix,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, "", fmt.Errorf("pdftoppm failed: %w; out=%s", err, string(out))
	}

	rendered, err := filepath.Glob(outPrefix + "*.png")
	if err != nil || len(rendered) == 0 {
		return nil, "", fmt.Errorf("pdftoppm produced no pages")
	}
	sort.Strings(rendered)

	pages := make([]model.NormalizedPage, 0, len(rendered))
	for i, path := range rendered {
		if i >= n.maxPDFPages {
			break
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, "", fmt.Errorf("read rendered page: %w", err)
		}
		img, err := png.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, "", fmt.Errorf("decode rendered page: %w", err)
		}
		img = n.bound(img)

		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, "", fmt.Errorf("encode page: %w", err)
		}
		b := img.Bounds()
		pages = append(pages, model.NormalizedPage{
			SourceRef:  "report",
			SourceName: f.Filename,
			Index:      i + 1,
			MimeType:   "image/png",
			Data:       buf.Bytes(),
			Width:      b.Dx(),
			Height:     b.Dy(),
		})
	}

	return pages, text, nil
}

// extractPDFText pulls plain text from the analyzed pages. Extraction failure
// is tolerated: the page rasters still carry the content visually.
func extractPDFText(reader *pdf.Reader, maxPages int) string {
	var sb strings.Builder
	last := reader.NumPage()
	if last > maxPages {
		last = maxPages
	}
	for i := 1; i <= last; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(content)
		sb.WriteString("\n")
	}
	text := strings.TrimSpace(sb.String())
	if runes := []rune(text); len(runes) > promptTextLimit {
		text = string(runes[:promptTextLimit])
	}
	return text
}

// normalizeImage decodes a raster, bounds its longest edge and re-encodes it
// as JPEG. Inputs already inside the limit pass through at their original
// dimensions, so re-normalizing a normalized image is a no-op size-wise.
func (n *Normalizer) normalizeImage(f *model.FileUpload, sourceRef string, index int) (*model.NormalizedPage, error) {
	img, err := decodeRaster(f)
	if err != nil {
		return nil, err
	}

	img = n.bound(img)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: n.jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}

	b := img.Bounds()
	return &model.NormalizedPage{
		SourceRef:  sourceRef,
		SourceName: f.Filename,
		Index:      index,
		MimeType:   "image/jpeg",
		Data:       buf.Bytes(),
		Width:      b.Dx(),
		Height:     b.Dy(),
	}, nil
}

func decodeRaster(f *model.FileUpload) (image.Image, error) {
	r := bytes.NewReader(f.Data)
	ct := strings.ToLower(f.ContentType)
	switch {
	case strings.Contains(ct, "png"):
		return png.Decode(r)
	case strings.Contains(ct, "jpeg"), strings.Contains(ct, "jpg"):
		return jpeg.Decode(r)
	case strings.Contains(ct, "gif"):
		return gif.Decode(r)
	case strings.Contains(ct, "bmp"):
		return bmp.Decode(r)
	default:
		img, _, err := image.Decode(r)
		return img, err
	}
}

// bound downscales img so its longest edge is at most maxEdge, preserving
// aspect ratio. Images already within the limit are returned unchanged.
func (n *Normalizer) bound(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	longest := w
	if h > longest {
		longest = h
	}
	if longest <= n.maxEdge {
		return img
	}

	scale := float64(n.maxEdge) / float64(longest)
	nw := int(float64(w) * scale)
	nh := int(float64(h) * scale)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

// logPages is a debug aid used by the pipeline.
func logPages(ctx context.Context, doc *model.NormalizedDocument) {
	logger.Debug(ctx, "document normalized",
		"report_pages", len(doc.ReportPages),
		"photo_pages", len(doc.PhotoPages),
		"report_text_len", len(doc.ReportText),
	)
}
