package tracker_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	infralogger "github.com/Siriusbar/SlopedIn/infrastructure/logger"
	"github.com/Siriusbar/SlopedIn/internal/domain"
	"github.com/Siriusbar/SlopedIn/internal/source"
	"github.com/Siriusbar/SlopedIn/internal/tracker"
)

type fakeRelay struct {
	calls   atomic.Int32
	release chan struct{}
	err     error
	score   float64
}

func (r *fakeRelay) Send(ctx context.Context, _ string) (domain.ClassificationResult, error) {
	r.calls.Add(1)
	if r.release != nil {
		select {
		case <-r.release:
		case <-ctx.Done():
			return domain.ClassificationResult{}, ctx.Err()
		}
	}
	if r.err != nil {
		return domain.ClassificationResult{}, r.err
	}
	return domain.ClassificationResult{Label: domain.LabelForScore(r.score), Score: r.score}, nil
}

type recordingRenderer struct {
	mu          sync.Mutex
	annotations []domain.Annotation
}

func (r *recordingRenderer) Render(_ context.Context, a domain.Annotation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.annotations = append(r.annotations, a)
	return nil
}

func (r *recordingRenderer) all() []domain.Annotation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Annotation(nil), r.annotations...)
}

func text(n int) string {
	return strings.Repeat("a", n)
}

func TestScan_OverlappingScansClassifyOnce(t *testing.T) {
	t.Parallel()

	doc := source.NewMemory()
	doc.Put("a", text(80))
	doc.Put("b", text(90))

	relay := &fakeRelay{release: make(chan struct{}), score: 0.9}
	tr := tracker.New(doc, relay, tracker.Config{}, infralogger.NewNop())

	var wg sync.WaitGroup
	var considered atomic.Int32
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			considered.Add(int32(tr.Scan(context.Background())))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(2), considered.Load())
	assert.Equal(t, 0, tr.Scan(context.Background()))

	close(relay.release)
	tr.Wait()

	assert.Equal(t, int32(2), relay.calls.Load())
	assert.Equal(t, domain.StateDone, tr.State("a"))
	assert.Equal(t, domain.StateDone, tr.State("b"))
}

func TestScan_MinimumTextLength(t *testing.T) {
	t.Parallel()

	doc := source.NewMemory()
	doc.Put("short", text(49))
	doc.Put("exact", text(50))

	relay := &fakeRelay{score: 0.2}
	tr := tracker.New(doc, relay, tracker.Config{}, infralogger.NewNop())

	tr.Scan(context.Background())
	tr.Wait()

	assert.Equal(t, domain.StateSkipped, tr.State("short"))
	assert.Equal(t, domain.StateDone, tr.State("exact"))
	assert.Equal(t, int32(1), relay.calls.Load())
}

func TestScan_DoneItemsAreRendered(t *testing.T) {
	t.Parallel()

	doc := source.NewMemory()
	doc.Put("post-1", text(600))

	renderer := &recordingRenderer{}
	tr := tracker.New(doc, &fakeRelay{score: 0.87}, tracker.Config{}, infralogger.NewNop(), tracker.WithRenderer(renderer))

	tr.Scan(context.Background())
	tr.Wait()

	annotations := renderer.all()
	require.Len(t, annotations, 1)
	assert.Equal(t, "post-1", annotations[0].Handle)
	assert.Equal(t, domain.LabelAI, annotations[0].Result.Label)
	assert.Equal(t, 600, annotations[0].TextLength)

	item, ok := tr.Get("post-1")
	require.True(t, ok)
	require.NotNil(t, item.Result)
	assert.InDelta(t, 0.87, item.Result.Score, 1e-9)
	assert.Equal(t, text(600), item.Text)
}

func TestScan_FailureIsTerminal(t *testing.T) {
	t.Parallel()

	doc := source.NewMemory()
	doc.Put("a", text(60))

	relay := &fakeRelay{err: domain.ErrModelLoadFailed}
	renderer := &recordingRenderer{}
	tr := tracker.New(doc, relay, tracker.Config{}, infralogger.NewNop(), tracker.WithRenderer(renderer))

	tr.Scan(context.Background())
	tr.Wait()
	tr.Scan(context.Background())
	tr.Wait()

	assert.Equal(t, domain.StateError, tr.State("a"))
	assert.Equal(t, int32(1), relay.calls.Load())
	assert.Empty(t, renderer.all())

	item, _ := tr.Get("a")
	assert.Contains(t, item.Error, "model load failed")
}

func TestConsider_ExtractionFailureIsError(t *testing.T) {
	t.Parallel()

	relay := &fakeRelay{}
	tr := tracker.New(source.NewMemory(), relay, tracker.Config{}, infralogger.NewNop())

	require.True(t, tr.Consider(context.Background(), "ghost"))
	tr.Wait()

	assert.Equal(t, domain.StateError, tr.State("ghost"))
	assert.Zero(t, relay.calls.Load())
}

func TestSetEnabled_DisableKeepsPendingAndResumesUnseen(t *testing.T) {
	t.Parallel()

	doc := source.NewMemory()
	doc.Put("a", text(70))

	relay := &fakeRelay{release: make(chan struct{})}
	tr := tracker.New(doc, relay, tracker.Config{}, infralogger.NewNop())

	require.Equal(t, 1, tr.Scan(context.Background()))
	tr.SetEnabled(false)

	doc.Put("b", text(70))
	assert.Equal(t, 0, tr.Scan(context.Background()))
	assert.False(t, tr.Consider(context.Background(), "b"))

	close(relay.release)
	tr.Wait()
	assert.Equal(t, domain.StateDone, tr.State("a"))
	assert.Equal(t, domain.StateUnseen, tr.State("b"))

	tr.SetEnabled(true)
	assert.Equal(t, 1, tr.Scan(context.Background()))
	tr.Wait()
	assert.Equal(t, domain.StateDone, tr.State("b"))
}

func TestScan_EvictsItemsGoneForSeveralScans(t *testing.T) {
	t.Parallel()

	doc := source.NewMemory()
	doc.Put("gone", text(10))
	doc.Put("stays", text(10))

	tr := tracker.New(doc, &fakeRelay{}, tracker.Config{EvictAfterScans: 2}, infralogger.NewNop())
	tr.Scan(context.Background())
	tr.Wait()

	doc.Remove("gone")
	tr.Scan(context.Background())
	_, ok := tr.Get("gone")
	assert.True(t, ok, "one missed scan keeps the entry")

	tr.Scan(context.Background())
	_, ok = tr.Get("gone")
	assert.False(t, ok)
	assert.Equal(t, domain.StateSkipped, tr.State("stays"))
}

func TestScan_NeverEvictsPending(t *testing.T) {
	t.Parallel()

	doc := source.NewMemory()
	doc.Put("a", text(60))

	relay := &fakeRelay{release: make(chan struct{})}
	tr := tracker.New(doc, relay, tracker.Config{EvictAfterScans: 1}, infralogger.NewNop())
	tr.Scan(context.Background())

	doc.Remove("a")
	for range 3 {
		tr.Scan(context.Background())
	}
	assert.Equal(t, domain.StatePending, tr.State("a"))

	close(relay.release)
	tr.Wait()
	assert.Equal(t, domain.StateDone, tr.State("a"))

	tr.Scan(context.Background())
	assert.Equal(t, domain.StateUnseen, tr.State("a"))
}

func TestSnapshotAndStats(t *testing.T) {
	t.Parallel()

	doc := source.NewMemory()
	doc.Put("1", text(60))
	doc.Put("2", text(5))
	doc.Put("3", text(60))

	relay := &scoreByCall{scores: []float64{0.9, 0.1}}
	tr := tracker.New(doc, relay, tracker.Config{}, infralogger.NewNop())
	tr.Scan(context.Background())
	tr.Wait()

	snapshot := tr.Snapshot()
	require.Len(t, snapshot, 3)
	assert.Equal(t, []source.Handle{"1", "2", "3"}, []source.Handle{snapshot[0].Handle, snapshot[1].Handle, snapshot[2].Handle})

	stats := tr.Stats()
	assert.Equal(t, tracker.Stats{Tracked: 3, Done: 2, Skipped: 1, AI: 1, Human: 1}, stats)
}

type scoreByCall struct {
	mu     sync.Mutex
	scores []float64
}

func (s *scoreByCall) Send(context.Context, string) (domain.ClassificationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.scores) == 0 {
		return domain.ClassificationResult{}, errors.New("no scores left")
	}
	score := s.scores[0]
	s.scores = s.scores[1:]
	return domain.ClassificationResult{Label: domain.LabelForScore(score), Score: score}, nil
}

func TestConsider_CancelledContextEndsInError(t *testing.T) {
	t.Parallel()

	doc := source.NewMemory()
	doc.Put("a", text(60))

	relay := &fakeRelay{release: make(chan struct{})}
	tr := tracker.New(doc, relay, tracker.Config{}, infralogger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	tr.Scan(ctx)
	require.Eventually(t, func() bool { return relay.calls.Load() == 1 }, time.Second, time.Millisecond)
	cancel()
	tr.Wait()

	assert.Equal(t, domain.StateError, tr.State("a"))
}
