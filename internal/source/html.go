package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// Selectors for feed post containers and the text blocks inside them.
var (
	DefaultPostSelectors = []string{
		".feed-shared-update-v2",
		"div[data-urn]",
	}
	DefaultTextSelectors = []string{
		".feed-shared-text",
		".update-components-text",
		".feed-shared-update-v2__description",
		".feed-shared-inline-show-more-text",
		`span[dir="ltr"]`,
	}
)

const handleHashLength = 16

// HTMLOption configures an HTMLDocument.
type HTMLOption func(*HTMLDocument)

// WithSelectors overrides the post and text selectors.
func WithSelectors(post, text []string) HTMLOption {
	return func(d *HTMLDocument) {
		if len(post) > 0 {
			d.postSelector = strings.Join(post, ", ")
		}
		if len(text) > 0 {
			d.textSelectors = text
		}
	}
}

// WithMinTextLength sets the length at which a text block is accepted
// without looking at later selectors.
func WithMinTextLength(n int) HTMLOption {
	return func(d *HTMLDocument) {
		if n > 0 {
			d.minTextLength = n
		}
	}
}

// post holds the candidate text blocks of one item, in selector order.
type post struct {
	blocks []string
}

// HTMLDocument is a feed snapshot. Each Load replaces the snapshot and
// reports the difference to watchers.
type HTMLDocument struct {
	postSelector  string
	textSelectors []string
	minTextLength int

	mu    sync.RWMutex
	order []Handle
	posts map[Handle]post
	hub   hub
}

// NewHTMLDocument creates an empty document.
func NewHTMLDocument(opts ...HTMLOption) *HTMLDocument {
	d := &HTMLDocument{
		postSelector:  strings.Join(DefaultPostSelectors, ", "),
		textSelectors: DefaultTextSelectors,
		minTextLength: DefaultMinTextLength,
		posts:         make(map[Handle]post),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Load parses r and replaces the snapshot.
func (d *HTMLDocument) Load(r io.Reader) error {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return fmt.Errorf("parse html: %w", err)
	}

	order := make([]Handle, 0)
	posts := make(map[Handle]post)
	seen := make(map[Handle]int)

	doc.Find(d.postSelector).Each(func(_ int, sel *goquery.Selection) {
		h := postHandle(sel)
		if n := seen[h]; n > 0 {
			seen[h] = n + 1
			h = Handle(fmt.Sprintf("%s#%d", h, n))
		} else {
			seen[h] = 1
		}

		order = append(order, h)
		posts[h] = post{blocks: d.textBlocks(sel)}
	})

	d.mu.Lock()
	batch := diff(d.posts, posts, order, d.order)
	d.order = order
	d.posts = posts
	d.mu.Unlock()

	d.hub.publish(batch)
	return nil
}

func (d *HTMLDocument) textBlocks(sel *goquery.Selection) []string {
	blocks := make([]string, 0, len(d.textSelectors))
	for _, textSel := range d.textSelectors {
		block := sel.Find(textSel).First()
		if block.Length() == 0 {
			continue
		}
		blocks = append(blocks, block.Text())
	}
	return blocks
}

// postHandle prefers the platform's own item identifier.
func postHandle(sel *goquery.Selection) Handle {
	for _, attr := range []string{"data-urn", "data-id"} {
		if v, ok := sel.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return Handle(strings.TrimSpace(v))
		}
	}
	sum := sha256.Sum256([]byte(strings.TrimSpace(sel.Text())))
	return Handle("post:" + hex.EncodeToString(sum[:])[:handleHashLength])
}

func diff(prev, next map[Handle]post, nextOrder, prevOrder []Handle) MutationBatch {
	var batch MutationBatch
	for _, h := range nextOrder {
		if _, ok := prev[h]; !ok {
			batch.Added = append(batch.Added, h)
		}
	}
	for _, h := range prevOrder {
		if _, ok := next[h]; !ok {
			batch.Removed = append(batch.Removed, h)
		}
	}
	return batch
}

// Handles implements Document.
func (d *HTMLDocument) Handles() []Handle {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]Handle, len(d.order))
	copy(out, d.order)
	return out
}

// Extract implements Document. Text blocks are tried in selector order; the
// first one reaching the minimum length wins, otherwise the last one found is
// returned.
func (d *HTMLDocument) Extract(h Handle) (string, error) {
	d.mu.RLock()
	p, ok := d.posts[h]
	d.mu.RUnlock()

	if !ok {
		return "", ErrUnknownHandle
	}

	var text string
	for _, block := range p.blocks {
		text = strings.TrimSpace(block)
		if utf8.RuneCountInString(text) >= d.minTextLength {
			break
		}
	}
	return text, nil
}

// Watch implements Document.
func (d *HTMLDocument) Watch(ctx context.Context) <-chan MutationBatch {
	return d.hub.subscribe(ctx)
}
