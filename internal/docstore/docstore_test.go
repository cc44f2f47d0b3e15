// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package docstore

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/claimgraph/internal/sqlite"
	"github.com/pdiddy/claimgraph/pkg/types"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	db, err := sqlite.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s, err := New(db, dir)
	require.NoError(t, err)
	s.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestPutIsIdempotent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	data := []byte("%PDF-1.4 example bytes")

	first, created, err := s.Put(ctx, "paper.pdf", data)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, Fingerprint(data), first.ID)
	assert.Equal(t, "paper.pdf", first.Filename)
	assert.Equal(t, int64(len(data)), first.Size)

	s.now = func() time.Time { return time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC) }
	second, created, err := s.Put(ctx, "renamed.pdf", data)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first, second, "existing record must be returned unchanged")
}

func TestPutConcurrentSameBytes(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	data := []byte("%PDF-1.7 concurrent")

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		creates int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, created, err := s.Put(ctx, fmt.Sprintf("copy-%d.pdf", i), data)
			assert.NoError(t, err)
			if created {
				mu.Lock()
				creates++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, creates)
}

func TestGetNotFound(t *testing.T) {
	s := testStore(t)
	_, err := s.Get(context.Background(), "deadbeef")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReadBytesRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	data := []byte("%PDF-1.5 body")

	doc, _, err := s.Put(ctx, "a.pdf", data)
	require.NoError(t, err)

	got, err := s.ReadBytes(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestSegmentsOrderedAndIdempotent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	doc, _, err := s.Put(ctx, "a.pdf", []byte("%PDF-1.5 segments"))
	require.NoError(t, err)

	segs := []types.Segment{
		{ID: "s3", DocumentID: doc.ID, Page: 2, Ordinal: 0, Text: "third"},
		{ID: "s1", DocumentID: doc.ID, Page: 1, Ordinal: 0, Text: "first"},
		{ID: "s2", DocumentID: doc.ID, Page: 1, Ordinal: 1, Text: "second"},
	}
	require.NoError(t, s.PutSegments(ctx, doc.ID, segs))
	require.NoError(t, s.PutSegments(ctx, doc.ID, segs))

	got, err := s.Segments(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"first", "second", "third"}, []string{got[0].Text, got[1].Text, got[2].Text})
}

func TestPutSegmentsRejectsForeignDocument(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	doc, _, err := s.Put(ctx, "a.pdf", []byte("%PDF-1.5 foreign"))
	require.NoError(t, err)

	err = s.PutSegments(ctx, doc.ID, []types.Segment{{ID: "x", DocumentID: "other", Page: 1}})
	assert.ErrorIs(t, err, sqlite.ErrStoreWrite)
}

func TestList(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _, err := s.Put(ctx, fmt.Sprintf("%d.pdf", i), []byte(fmt.Sprintf("%%PDF-1.4 doc %d", i)))
		require.NoError(t, err)
	}

	docs, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 3)
	for i := 1; i < len(docs); i++ {
		assert.Less(t, docs[i-1].ID, docs[i].ID)
	}
}
