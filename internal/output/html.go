package output

import (
	"bytes"
	"embed"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/singleronbio/scopetools/internal/logging"
	"github.com/singleronbio/scopetools/internal/report"
)

var (
	// ErrTemplateMissing reports a template name that is not in the template directory.
	ErrTemplateMissing = errors.New("template missing")
	// ErrRender reports a template that failed to parse or execute.
	ErrRender = errors.New("render report")
)

// DefaultTemplate is the report template rendered for every stage.
const DefaultTemplate = "base.html"

// ReportFileName is the rendered artifact inside each stage directory.
const ReportFileName = "report.html"

//go:embed templates/*.html
var embeddedTemplates embed.FS

// HTMLOptions configure the HTML renderer.
type HTMLOptions struct {
	// TemplatesDir replaces the embedded templates when non-empty.
	TemplatesDir string
	// Title is shown as the page heading.
	Title string
	// Notes holds Markdown descriptions keyed by stage name.
	Notes  map[string]string
	Logger *slog.Logger
}

// HTMLRenderer renders report documents through html/template.
type HTMLRenderer struct {
	fsys  fs.FS
	title string
	notes map[string]string
	md    goldmark.Markdown
	log   *slog.Logger
}

// NewHTML creates an HTML renderer.
func NewHTML(opts HTMLOptions) *HTMLRenderer {
	var fsys fs.FS
	if opts.TemplatesDir != "" {
		fsys = os.DirFS(opts.TemplatesDir)
	} else {
		fsys, _ = fs.Sub(embeddedTemplates, "templates")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &HTMLRenderer{
		fsys:  fsys,
		title: opts.Title,
		notes: opts.Notes,
		md:    goldmark.New(),
		log:   logging.WithComponent(logger, "render"),
	}
}

// Render executes templateName with every section of doc addressable by its
// key and writes the result to outputPath, replacing any previous file.
// Nothing is written when the template is missing or fails.
func (h *HTMLRenderer) Render(doc report.Document, templateName, outputPath string) error {
	if _, err := fs.Stat(h.fsys, templateName); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrTemplateMissing, templateName, err)
	}

	tmpl, err := template.New(templateName).
		Option("missingkey=error").
		Funcs(h.funcs(doc)).
		ParseFS(h.fsys, templateName)
	if err != nil {
		return fmt.Errorf("%w: parse %s: %v", ErrRender, templateName, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, doc.Data()); err != nil {
		return fmt.Errorf("%w: %v", ErrRender, err)
	}
	if err := report.WriteFileAtomic(outputPath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write report %q: %w", outputPath, err)
	}
	h.log.Info("report rendered", logging.Path(outputPath), slog.Int("sections", doc.Len()))
	return nil
}

func (h *HTMLRenderer) funcs(doc report.Document) template.FuncMap {
	return template.FuncMap{
		"title":    func() string { return h.title },
		"stages":   doc.Stages,
		"note":     func(stage string) string { return h.notes[stage] },
		"number":   formatNumber,
		"markdown": h.markdown,
		"imgsrc":   imageSource,
		"json":     toJS,
		"summary":  func(stage string) string { return report.SummaryKey(stage) },
		"plot":     func(stage string) string { return report.PlotKey(stage) },
		"images":   func(stage string) string { return report.ImagesKey(stage) },
	}
}

func (h *HTMLRenderer) markdown(src string) (template.HTML, error) {
	if strings.TrimSpace(src) == "" {
		return "", nil
	}
	var buf bytes.Buffer
	if err := h.md.Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

var printer = message.NewPrinter(language.English)

// formatNumber groups the digits of integer statistics ("1234" becomes
// "1,234"). Other values are returned unchanged. Custom templates opt in
// with {{ number .Value }}; base.html prints stored values as they are.
func formatNumber(v any) string {
	s := fmt.Sprint(v)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return printer.Sprintf("%d", n)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && strings.Contains(s, ".") {
		decimals := len(s) - strings.Index(s, ".") - 1
		return printer.Sprintf("%.*f", decimals, f)
	}
	return s
}

// imageSource turns a base64 image into a data URI.
func imageSource(encoded string) (template.URL, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}
	mime := http.DetectContentType(raw)
	return template.URL("data:" + mime + ";base64," + encoded), nil
}

func toJS(v any) (template.JS, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return template.JS(data), nil
}
