package extractor

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/use-agent/pricewatch/config"
)

// HTMLPage is a read-only Page over saved markup. Block clicks are not
// possible, so the block strategy always comes up empty on it.
type HTMLPage struct {
	url      string
	raw      string
	doc      *goquery.Document
	blockSel cascadia.SelectorGroup
	priceSel cascadia.SelectorGroup
}

// NewHTMLPage parses markup saved from pageURL.
func NewHTMLPage(pageURL, markup string, cfg config.ExtractorConfig) (*HTMLPage, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	p := &HTMLPage{url: pageURL, raw: markup, doc: doc}
	if cfg.BlockSelector != "" {
		if p.blockSel, err = cascadia.ParseGroup(cfg.BlockSelector); err != nil {
			return nil, fmt.Errorf("block selector: %w", err)
		}
	}
	if cfg.PriceDisplaySelector != "" {
		if p.priceSel, err = cascadia.ParseGroup(cfg.PriceDisplaySelector); err != nil {
			return nil, fmt.Errorf("price selector: %w", err)
		}
	}
	return p, nil
}

func (p *HTMLPage) URL(context.Context) (string, error)  { return p.url, nil }
func (p *HTMLPage) HTML(context.Context) (string, error) { return p.raw, nil }

var hasDigit = regexp.MustCompile(`\d`)

func (p *HTMLPage) Labels(context.Context) ([]string, error) {
	var out []string
	p.doc.Find("[aria-label],[title]").Each(func(_ int, s *goquery.Selection) {
		for _, attr := range []string{"aria-label", "title"} {
			if v, ok := s.Attr(attr); ok && hasDigit.MatchString(v) {
				out = append(out, v)
			}
		}
	})
	return out, nil
}

func (p *HTMLPage) AnchorContexts(_ context.Context, t Tier, depth int) ([][]string, error) {
	var out [][]string
	seen := make(map[*html.Node]bool)
	for _, root := range p.doc.Find("body").Nodes {
		walkText(root, func(n *html.Node) bool {
			if len(out) >= maxAnchors {
				return false
			}
			el := n.Parent
			if el == nil || seen[el] || !t.Match(n.Data) {
				return true
			}
			seen[el] = true
			var chain []string
			for i := 0; el != nil && el.Type == html.ElementNode && i <= depth; i, el = i+1, el.Parent {
				chain = append(chain, truncateUTF8(innerText(el), 2000))
			}
			out = append(out, chain)
			return true
		})
	}
	return out, nil
}

func (p *HTMLPage) Blocks(context.Context) ([]Block, error) {
	if p.blockSel == nil {
		return nil, nil
	}
	var out []Block
	for i, n := range cascadia.QueryAll(p.doc.Get(0), p.blockSel) {
		s := p.doc.FindNodes(n)
		id := firstAttr(s, "data-section-id", "data-block-id", "id", "aria-label")
		label, ok := s.Attr("aria-label")
		if !ok {
			label = truncateUTF8(strings.TrimSpace(s.Text()), 80)
		}
		out = append(out, Block{ID: id, Label: label, Index: i})
	}
	return out, nil
}

func (p *HTMLPage) ClickBlock(context.Context, Block) error {
	return ErrClickUnsupported
}

func (p *HTMLPage) PriceDisplay(context.Context) (string, error) {
	if p.priceSel == nil {
		return "", nil
	}
	nodes := cascadia.QueryAll(p.doc.Get(0), p.priceSel)
	if len(nodes) == 0 {
		return "", nil
	}
	return innerText(nodes[0]), nil
}

func (p *HTMLPage) VisibleText(_ context.Context, maxBytes int) (string, error) {
	var b strings.Builder
	for _, n := range p.doc.Find("body").Nodes {
		b.WriteString(innerText(n))
	}
	return truncateUTF8(b.String(), maxBytes), nil
}

func firstAttr(s *goquery.Selection, names ...string) string {
	for _, name := range names {
		if v, ok := s.Attr(name); ok && v != "" {
			return v
		}
	}
	return ""
}

var hiddenTags = map[string]bool{
	"script": true, "style": true, "noscript": true, "template": true, "head": true,
}

var blockTags = map[string]bool{
	"address": true, "article": true, "aside": true, "br": true, "dd": true, "div": true,
	"dl": true, "dt": true, "fieldset": true, "figure": true, "footer": true, "form": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true, "header": true,
	"hr": true, "li": true, "main": true, "nav": true, "ol": true, "p": true, "section": true,
	"table": true, "tr": true, "td": true, "th": true, "ul": true, "button": true,
}

// innerText approximates the browser's innerText: hidden elements are
// skipped, block elements become line breaks, whitespace runs collapse.
func innerText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			if f := strings.Join(strings.Fields(n.Data), " "); f != "" {
				if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
					b.WriteByte(' ')
				}
				b.WriteString(f)
			}
			return
		case html.ElementNode:
			if hiddenTags[n.Data] {
				return
			}
		}
		block := n.Type == html.ElementNode && blockTags[n.Data]
		if block && b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
			b.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block && b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
			b.WriteByte('\n')
		}
	}
	walk(n)
	return strings.TrimSpace(b.String())
}

// walkText visits text nodes outside hidden elements until fn returns false.
func walkText(n *html.Node, fn func(*html.Node) bool) bool {
	if n.Type == html.ElementNode && hiddenTags[n.Data] {
		return true
	}
	if n.Type == html.TextNode {
		return fn(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !walkText(c, fn) {
			return false
		}
	}
	return true
}
