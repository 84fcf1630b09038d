package feed_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	infralogger "github.com/Siriusbar/SlopedIn/infrastructure/logger"
	"github.com/Siriusbar/SlopedIn/internal/feed"
	"github.com/Siriusbar/SlopedIn/internal/source"
)

const debounce = 40 * time.Millisecond

type countingScanner struct {
	scans atomic.Int32
}

func (s *countingScanner) Scan(context.Context) int {
	s.scans.Add(1)
	return 0
}

func start(t *testing.T, doc source.Document, scanner feed.Scanner) *feed.Observer {
	t.Helper()

	o := feed.New(doc, scanner, feed.Config{Debounce: debounce}, infralogger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = o.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return o
}

func TestObserver_InitialScan(t *testing.T) {
	t.Parallel()

	scanner := &countingScanner{}
	start(t, source.NewMemory(), scanner)

	require.Eventually(t, func() bool { return scanner.scans.Load() == 1 }, time.Second, time.Millisecond)
}

func TestObserver_BurstCoalescesIntoOneScan(t *testing.T) {
	t.Parallel()

	doc := source.NewMemory()
	scanner := &countingScanner{}
	start(t, doc, scanner)
	require.Eventually(t, func() bool { return scanner.scans.Load() == 1 }, time.Second, time.Millisecond)

	for _, h := range []source.Handle{"a", "b", "c", "d", "e"} {
		doc.Put(h, "text")
		time.Sleep(debounce / 8)
	}

	require.Eventually(t, func() bool { return scanner.scans.Load() == 2 }, time.Second, time.Millisecond)
	time.Sleep(3 * debounce)
	assert.Equal(t, int32(2), scanner.scans.Load())
}

func TestObserver_RemovalsDoNotScan(t *testing.T) {
	t.Parallel()

	doc := source.NewMemory()
	doc.Put("a", "text")

	scanner := &countingScanner{}
	start(t, doc, scanner)
	require.Eventually(t, func() bool { return scanner.scans.Load() == 1 }, time.Second, time.Millisecond)

	doc.Remove("a")
	time.Sleep(3 * debounce)
	assert.Equal(t, int32(1), scanner.scans.Load())
}

func TestObserver_DisableStopsScansAndEnableRescans(t *testing.T) {
	t.Parallel()

	doc := source.NewMemory()
	scanner := &countingScanner{}
	o := start(t, doc, scanner)
	require.Eventually(t, func() bool { return scanner.scans.Load() == 1 }, time.Second, time.Millisecond)

	o.SetEnabled(false)
	// let the loop observe the toggle before mutating
	time.Sleep(debounce / 2)
	doc.Put("a", "text")
	time.Sleep(3 * debounce)
	assert.Equal(t, int32(1), scanner.scans.Load())

	o.SetEnabled(true)
	require.Eventually(t, func() bool { return scanner.scans.Load() == 2 }, time.Second, time.Millisecond)
	assert.True(t, o.Enabled())
	assert.Equal(t, int64(2), o.Scans())
}

func TestObserver_StartsDisabled(t *testing.T) {
	t.Parallel()

	scanner := &countingScanner{}
	o := feed.New(source.NewMemory(), scanner, feed.Config{Debounce: debounce}, infralogger.NewNop())
	o.SetEnabled(false)

	ctx, cancel := context.WithTimeout(context.Background(), 2*debounce)
	defer cancel()
	require.NoError(t, o.Run(ctx))
	assert.Zero(t, scanner.scans.Load())
}
