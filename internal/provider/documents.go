package provider

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/pharmacy-harvester/internal/fetcher"
	"github.com/sells-group/pharmacy-harvester/internal/model"
	"github.com/sells-group/pharmacy-harvester/internal/normalize"
	"github.com/sells-group/pharmacy-harvester/internal/textract"
)

// Default document locations.
const (
	DefaultRegistryURL  = "https://fzocg.me/wp-content/uploads/2023/11/Spisak-apoteka-za-sajt.pdf"
	DefaultMontefarmURL = "https://montefarm.co.me/en/apoteke/"
	DefaultBenuURL      = "https://www.benu.me/apoteke"
)

// Document is a scraped registry or chain page. Lines of a PDF or blocks of
// an HTML page that match the keyword filter become rows.
type Document struct {
	name      string
	url       string
	fetch     fetcher.Fetcher
	pdf       textract.PDFExtractor
	selectors []textract.Selector
	keep      *regexp.Regexp
	parse     func(string) model.RegistryRow
	log       *zap.Logger
}

func newDocument(name, url string, f fetcher.Fetcher, keep *regexp.Regexp, parse func(string) model.RegistryRow) *Document {
	return &Document{
		name:  name,
		url:   url,
		fetch: f,
		keep:  keep,
		parse: parse,
		log:   zap.L().With(zap.String("component", "provider"), zap.String("document", name)),
	}
}

// NewRegistryDocument reads the health-fund pharmacy list PDF.
func NewRegistryDocument(url string, f fetcher.Fetcher, pdf textract.PDFExtractor) *Document {
	if url == "" {
		url = DefaultRegistryURL
	}
	d := newDocument("fzo", url, f, regexp.MustCompile(`(?i)(apoteka|апотека|pharmacy)`), parseRegistryRow)
	d.pdf = pdf
	return d
}

// NewMontefarmDocument reads the Montefarm store locator page.
func NewMontefarmDocument(url string, f fetcher.Fetcher) *Document {
	if url == "" {
		url = DefaultMontefarmURL
	}
	d := newDocument("montefarm", url, f, regexp.MustCompile(`Pharmacy|Apoteka`), parseMontefarmRow)
	d.selectors = textract.ParseSelectors("li,p,h2,h3,.pharmacy,.elementor-widget-container")
	return d
}

// NewBenuDocument reads the BENU store list page.
func NewBenuDocument(url string, f fetcher.Fetcher) *Document {
	if url == "" {
		url = DefaultBenuURL
	}
	d := newDocument("benu", url, f, regexp.MustCompile(`(BENU|Apoteka|Pharmacy)`), parseBenuRow)
	d.selectors = textract.ParseSelectors("a,li,p,div")
	return d
}

func (d *Document) Name() string { return d.name }

// Rows fetches the document and returns parsed rows unique by normalized text.
func (d *Document) Rows(ctx context.Context) []model.RegistryRow {
	if d.fetch == nil {
		return nil
	}
	body, err := d.fetch.Get(ctx, d.url)
	if err != nil {
		d.log.Warn("document: fetch failed", zap.String("url", d.url), zap.Error(err))
		return nil
	}

	lines, err := d.lines(ctx, body)
	if err != nil {
		d.log.Warn("document: extract failed", zap.String("url", d.url), zap.Error(err))
		return nil
	}

	seen := make(map[string]struct{})
	var rows []model.RegistryRow
	for _, line := range lines {
		line = normalize.Clean(line)
		if line == "" || !d.keep.MatchString(line) {
			continue
		}
		key := normalize.Name(line)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		row := d.parse(line)
		row.Origin = d.name
		rows = append(rows, row)
	}
	d.log.Info("document: parsed rows", zap.Int("rows", len(rows)))
	return rows
}

func (d *Document) lines(ctx context.Context, body []byte) ([]string, error) {
	if d.pdf != nil {
		text, err := d.pdf.PDFText(ctx, body)
		if err != nil {
			return nil, err
		}
		return strings.Split(text, "\n"), nil
	}
	return textract.Blocks(body, d.selectors)
}
