// Package tracker decides, per item, whether it needs classification and
// records where each item ended up.
package tracker

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	infralogger "github.com/Siriusbar/SlopedIn/infrastructure/logger"
	"github.com/Siriusbar/SlopedIn/internal/domain"
	"github.com/Siriusbar/SlopedIn/internal/source"
)

// Defaults for Config.
const (
	DefaultMinTextLength   = 50
	DefaultEvictAfterScans = 3
)

// Relay sends text to the inference context. *relay.Relay implements it.
type Relay interface {
	Send(ctx context.Context, text string) (domain.ClassificationResult, error)
}

// Renderer receives annotations for items that reached Done.
type Renderer interface {
	Render(ctx context.Context, a domain.Annotation) error
}

// Recorder receives tracker measurements. *telemetry.Provider implements it.
type Recorder interface {
	RecordScan(considered int, d time.Duration)
	RecordTransition(state domain.ProcessingState)
	RecordClassification(outcome string, d time.Duration)
	RecordEvictions(n int)
}

// Config tunes the tracker.
type Config struct {
	MinTextLength int `env:"TRACKER_MIN_TEXT_LENGTH" yaml:"min_text_length"`
	// EvictAfterScans drops entries missing from this many consecutive scans.
	EvictAfterScans int `env:"TRACKER_EVICT_AFTER_SCANS" yaml:"evict_after_scans"`
}

// SetDefaults fills unset values.
func (c *Config) SetDefaults() {
	if c.MinTextLength == 0 {
		c.MinTextLength = DefaultMinTextLength
	}
	if c.EvictAfterScans == 0 {
		c.EvictAfterScans = DefaultEvictAfterScans
	}
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithRenderer attaches the renderer for Done items.
func WithRenderer(r Renderer) Option {
	return func(t *Tracker) { t.renderer = r }
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(t *Tracker) { t.metrics = r }
}

// Item is a read-only view of a tracked entry.
type Item struct {
	Handle    source.Handle                `json:"handle"`
	State     domain.ProcessingState       `json:"state"`
	Text      string                       `json:"text,omitempty"`
	Result    *domain.ClassificationResult `json:"result,omitempty"`
	Error     string                       `json:"error,omitempty"`
	UpdatedAt time.Time                    `json:"updated_at"`
}

type entry struct {
	seq     uint64
	state   domain.ProcessingState
	text    string
	result  *domain.ClassificationResult
	errMsg  string
	missed  int
	updated time.Time
}

// Tracker owns the per-item state machine. An item becomes Pending exactly
// once; Done, Skipped and Error never change afterwards.
type Tracker struct {
	doc      source.Document
	relay    Relay
	renderer Renderer
	metrics  Recorder
	logger   infralogger.Logger
	tracer   trace.Tracer
	cfg      Config

	enabled atomic.Bool

	mu      sync.Mutex
	items   map[source.Handle]*entry
	nextSeq uint64

	wg sync.WaitGroup
}

// New creates an enabled tracker over doc.
func New(doc source.Document, relay Relay, cfg Config, log infralogger.Logger, opts ...Option) *Tracker {
	cfg.SetDefaults()

	t := &Tracker{
		doc:    doc,
		relay:  relay,
		logger: log.With(infralogger.Component("tracker")),
		tracer: otel.Tracer("github.com/Siriusbar/SlopedIn/internal/tracker"),
		cfg:    cfg,
		items:  make(map[source.Handle]*entry),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.enabled.Store(true)
	return t
}

// SetEnabled gates Consider. Items already Pending keep running.
func (t *Tracker) SetEnabled(enabled bool) {
	t.enabled.Store(enabled)
}

// Enabled reports whether new items are accepted.
func (t *Tracker) Enabled() bool {
	return t.enabled.Load()
}

// Scan reconciles against the document and considers every unseen item.
// It returns the number of items that became Pending.
func (t *Tracker) Scan(ctx context.Context) int {
	if !t.Enabled() {
		return 0
	}

	ctx, span := t.tracer.Start(ctx, "tracker.scan")
	defer span.End()

	start := time.Now()
	handles := t.doc.Handles()
	t.reconcile(handles)

	considered := 0
	for _, h := range handles {
		if t.Consider(ctx, h) {
			considered++
		}
	}

	span.SetAttributes(
		attribute.Int("scan.handles", len(handles)),
		attribute.Int("scan.considered", considered),
	)
	if t.metrics != nil {
		t.metrics.RecordScan(considered, time.Since(start))
	}
	if considered > 0 {
		t.logger.Debug("Scan dispatched items",
			infralogger.Int("handles", len(handles)),
			infralogger.Int("considered", considered),
		)
	}
	return considered
}

// Consider marks h Pending and starts extraction and classification in the
// background. It returns false if the tracker is disabled or h has been
// seen before.
func (t *Tracker) Consider(ctx context.Context, h source.Handle) bool {
	if !t.Enabled() {
		return false
	}

	t.mu.Lock()
	if _, seen := t.items[h]; seen {
		t.mu.Unlock()
		return false
	}
	t.nextSeq++
	t.items[h] = &entry{seq: t.nextSeq, state: domain.StatePending, updated: time.Now()}
	t.wg.Add(1)
	t.mu.Unlock()

	t.recordTransition(domain.StatePending)

	go func() {
		defer t.wg.Done()
		t.process(ctx, h)
	}()
	return true
}

func (t *Tracker) process(ctx context.Context, h source.Handle) {
	log := t.logger.With(infralogger.ItemHandle(string(h)))

	text, err := t.doc.Extract(h)
	if err != nil {
		log.Warn("Failed to extract item text", infralogger.Error(err))
		t.finish(h, domain.StateError, func(e *entry) { e.errMsg = err.Error() })
		return
	}

	length := utf8.RuneCountInString(text)
	if length < t.cfg.MinTextLength {
		log.Debug("Skipping item with insufficient text", infralogger.Int("text_length", length))
		t.finish(h, domain.StateSkipped, func(e *entry) { e.errMsg = domain.ErrExtractionInsufficient.Error() })
		return
	}
	t.update(h, func(e *entry) { e.text = text })

	start := time.Now()
	result, err := t.relay.Send(ctx, text)
	if t.metrics != nil {
		t.metrics.RecordClassification(outcome(err), time.Since(start))
	}
	if err != nil {
		log.Warn("Classification failed for item", infralogger.Error(err))
		t.finish(h, domain.StateError, func(e *entry) { e.errMsg = err.Error() })
		return
	}

	t.finish(h, domain.StateDone, func(e *entry) { e.result = &result })
	log.Debug("Item classified",
		infralogger.String("label", string(result.Label)),
		infralogger.Float64("score", result.Score),
	)

	if t.renderer == nil {
		return
	}
	annotation := domain.Annotation{
		Handle:       string(h),
		Result:       result,
		TextLength:   length,
		ClassifiedAt: time.Now().UTC(),
	}
	if err = t.renderer.Render(ctx, annotation); err != nil {
		log.Warn("Failed to render annotation", infralogger.Error(err))
	}
}

func (t *Tracker) update(h source.Handle, fn func(*entry)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e, ok := t.items[h]; ok {
		fn(e)
	}
}

// finish moves a Pending entry to a terminal state.
func (t *Tracker) finish(h source.Handle, state domain.ProcessingState, fn func(*entry)) {
	t.mu.Lock()
	e, ok := t.items[h]
	if !ok || e.state != domain.StatePending {
		t.mu.Unlock()
		return
	}
	e.state = state
	e.updated = time.Now()
	if fn != nil {
		fn(e)
	}
	t.mu.Unlock()

	t.recordTransition(state)
}

// reconcile ages out entries whose handles left the document. Pending
// entries are kept until they finish.
func (t *Tracker) reconcile(handles []source.Handle) {
	present := make(map[source.Handle]struct{}, len(handles))
	for _, h := range handles {
		present[h] = struct{}{}
	}

	t.mu.Lock()
	evicted := 0
	for h, e := range t.items {
		if _, ok := present[h]; ok {
			e.missed = 0
			continue
		}
		e.missed++
		if e.missed >= t.cfg.EvictAfterScans && e.state != domain.StatePending {
			delete(t.items, h)
			evicted++
		}
	}
	t.mu.Unlock()

	if evicted > 0 {
		t.logger.Debug("Evicted items no longer in the document", infralogger.Int("count", evicted))
		if t.metrics != nil {
			t.metrics.RecordEvictions(evicted)
		}
	}
}

func (t *Tracker) recordTransition(state domain.ProcessingState) {
	if t.metrics != nil {
		t.metrics.RecordTransition(state)
	}
}

// State returns the state of h; untracked handles are Unseen.
func (t *Tracker) State(h source.Handle) domain.ProcessingState {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e, ok := t.items[h]; ok {
		return e.state
	}
	return domain.StateUnseen
}

// Get returns a copy of the entry for h.
func (t *Tracker) Get(h source.Handle) (Item, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.items[h]
	if !ok {
		return Item{}, false
	}
	return e.view(h), true
}

// Snapshot returns every tracked item in the order it was first considered.
func (t *Tracker) Snapshot() []Item {
	t.mu.Lock()
	type seqItem struct {
		seq  uint64
		item Item
	}
	all := make([]seqItem, 0, len(t.items))
	for h, e := range t.items {
		all = append(all, seqItem{seq: e.seq, item: e.view(h)})
	}
	t.mu.Unlock()

	slices.SortFunc(all, func(a, b seqItem) int { return cmp.Compare(a.seq, b.seq) })

	out := make([]Item, len(all))
	for i, si := range all {
		out[i] = si.item
	}
	return out
}

// Stats counts tracked items by state.
type Stats struct {
	Tracked int `json:"tracked"`
	Pending int `json:"pending"`
	Done    int `json:"done"`
	Skipped int `json:"skipped"`
	Error   int `json:"error"`
	AI      int `json:"ai"`
	Human   int `json:"human"`
}

// Stats summarises the tracked items.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Stats{Tracked: len(t.items)}
	for _, e := range t.items {
		switch e.state {
		case domain.StatePending:
			s.Pending++
		case domain.StateDone:
			s.Done++
			if e.result != nil && e.result.Label == domain.LabelAI {
				s.AI++
			} else {
				s.Human++
			}
		case domain.StateSkipped:
			s.Skipped++
		case domain.StateError:
			s.Error++
		case domain.StateUnseen:
		}
	}
	return s
}

// Wait blocks until every Pending item has reached a terminal state.
func (t *Tracker) Wait() {
	t.wg.Wait()
}

func (e *entry) view(h source.Handle) Item {
	item := Item{
		Handle:    h,
		State:     e.state,
		Text:      e.text,
		Error:     e.errMsg,
		UpdatedAt: e.updated,
	}
	if e.result != nil {
		r := *e.result
		item.Result = &r
	}
	return item
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}
