package extractor

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/use-agent/pricewatch/config"
	"github.com/use-agent/pricewatch/session"
)

const (
	labelsJS = `() => {
		const out = [];
		for (const el of document.querySelectorAll('[aria-label],[title]')) {
			for (const attr of ['aria-label', 'title']) {
				const v = el.getAttribute(attr);
				if (v && /\d/.test(v)) out.push(v);
			}
		}
		return out;
	}`

	anchorJS = `(src, depth, limit) => {
		const re = new RegExp(src, 'i');
		const out = [];
		const seen = new Set();
		if (!document.body) return out;
		const walker = document.createTreeWalker(document.body, NodeFilter.SHOW_TEXT);
		while (walker.nextNode() && out.length < limit) {
			const node = walker.currentNode;
			if (!re.test(node.nodeValue || '')) continue;
			let el = node.parentElement;
			if (!el || seen.has(el)) continue;
			seen.add(el);
			const chain = [];
			for (let i = 0; el && i <= depth; i++, el = el.parentElement) {
				chain.push((el.innerText || el.textContent || '').slice(0, 2000));
			}
			out.push(chain);
		}
		return out;
	}`

	blocksJS = `(sel) => Array.from(document.querySelectorAll(sel)).map((el, i) => ({
		id: el.getAttribute('data-section-id') || el.getAttribute('data-block-id') || el.id || el.getAttribute('aria-label') || '',
		label: el.getAttribute('aria-label') || (el.textContent || '').trim().slice(0, 80),
		index: i,
	}))`

	clickJS = `(sel, i) => {
		const el = document.querySelectorAll(sel)[i];
		if (!el) return false;
		el.dispatchEvent(new MouseEvent('click', {bubbles: true, cancelable: true}));
		return true;
	}`

	priceJS = `(sel) => {
		const el = document.querySelector(sel);
		return el ? (el.innerText || el.textContent || '') : '';
	}`

	textJS = `(n) => (document.body ? document.body.innerText : '').slice(0, n)`
)

// maxAnchors bounds the anchors collected per tier.
const maxAnchors = 50

// RodPage reads a live page through the DevTools protocol.
type RodPage struct {
	page          *rod.Page
	blockSelector string
	priceSelector string
	classify      func(error) error
}

// NewRodPage wraps page. classify types driver errors; it may be nil.
func NewRodPage(page *rod.Page, cfg config.ExtractorConfig, classify func(error) error) *RodPage {
	return &RodPage{
		page:          page,
		blockSelector: cfg.BlockSelector,
		priceSelector: cfg.PriceDisplaySelector,
		classify:      classify,
	}
}

// RodOpener opens RodPages on sessions created by a RodDriver factory.
func RodOpener(mgr *session.Manager, cfg config.ExtractorConfig) Opener {
	return func(h *session.Handle) (Page, error) {
		d, ok := h.Driver().(*session.RodDriver)
		if !ok {
			return nil, fmt.Errorf("session %d is not browser-backed", h.ID)
		}
		return NewRodPage(d.Page(), cfg, func(err error) error {
			return mgr.Classify(h, err)
		}), nil
	}
}

func (r *RodPage) fail(err error) error {
	if err == nil || r.classify == nil {
		return err
	}
	return r.classify(err)
}

func (r *RodPage) eval(ctx context.Context, js string, out any, args ...any) error {
	res, err := r.page.Context(ctx).Eval(js, args...)
	if err != nil {
		return r.fail(err)
	}
	if err := res.Value.Unmarshal(out); err != nil {
		return fmt.Errorf("decode eval result: %w", err)
	}
	return nil
}

func (r *RodPage) URL(ctx context.Context) (string, error) {
	info, err := r.page.Context(ctx).Info()
	if err != nil {
		return "", r.fail(err)
	}
	return info.URL, nil
}

func (r *RodPage) HTML(ctx context.Context) (string, error) {
	s, err := r.page.Context(ctx).HTML()
	return s, r.fail(err)
}

func (r *RodPage) Labels(ctx context.Context) ([]string, error) {
	var out []string
	err := r.eval(ctx, labelsJS, &out)
	return out, err
}

func (r *RodPage) AnchorContexts(ctx context.Context, t Tier, depth int) ([][]string, error) {
	var out [][]string
	err := r.eval(ctx, anchorJS, &out, t.Source, depth, maxAnchors)
	return out, err
}

func (r *RodPage) Blocks(ctx context.Context) ([]Block, error) {
	if r.blockSelector == "" {
		return nil, nil
	}
	var out []Block
	err := r.eval(ctx, blocksJS, &out, r.blockSelector)
	return out, err
}

// ClickBlock clicks through the input pipeline, falling back to a DOM
// click event for SVG shapes the mouse cannot reach.
func (r *RodPage) ClickBlock(ctx context.Context, b Block) error {
	p := r.page.Context(ctx)
	els, err := p.Elements(r.blockSelector)
	if err != nil {
		return r.fail(err)
	}
	if b.Index < len(els) {
		if err := els[b.Index].Timeout(3*time.Second).Click(proto.InputMouseButtonLeft, 1); err == nil {
			return nil
		}
	}
	var clicked bool
	if err := r.eval(ctx, clickJS, &clicked, r.blockSelector, b.Index); err != nil {
		return err
	}
	if !clicked {
		return fmt.Errorf("block %q disappeared", b.ID)
	}
	return nil
}

func (r *RodPage) PriceDisplay(ctx context.Context) (string, error) {
	if r.priceSelector == "" {
		return "", nil
	}
	var out string
	err := r.eval(ctx, priceJS, &out, r.priceSelector)
	return out, err
}

func (r *RodPage) VisibleText(ctx context.Context, maxBytes int) (string, error) {
	if maxBytes <= 0 {
		maxBytes = 1 << 20
	}
	var out string
	err := r.eval(ctx, textJS, &out, maxBytes)
	return truncateUTF8(out, maxBytes), err
}
