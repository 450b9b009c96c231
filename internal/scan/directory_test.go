package scan

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pageCall struct {
	pages, maxPages, total int
}

func listAll(t *testing.T, d *Directory, wanted, pageSize int) ([]pageCall, int, error) {
	t.Helper()

	var calls []pageCall
	servers, err := d.List(context.Background(), 1, wanted, pageSize, func(pages, maxPages, total int) {
		calls = append(calls, pageCall{pages, maxPages, total})
	})

	return calls, len(servers), err
}

func TestDirectoryListTruncates(t *testing.T) {
	lister := &fakeLister{total: 1000}
	d := &Directory{Lister: lister}

	calls, n, err := listAll(t, d, 250, 100)
	require.NoError(t, err)

	assert.Equal(t, 250, n)
	assert.Equal(t, int32(3), lister.calls.Load())
	assert.Equal(t, []pageCall{{1, 3, 100}, {2, 3, 200}, {3, 3, 300}}, calls)
}

func TestDirectoryListShortPagesStopAtMaxPages(t *testing.T) {
	lister := &fakeLister{total: 1000}
	d := &Directory{Lister: lister}

	// Pages of 25 for a wanted 100 take exactly four requests
	_, n, err := listAll(t, d, 100, 25)
	require.NoError(t, err)
	assert.Equal(t, 100, n)
	assert.Equal(t, int32(4), lister.calls.Load())
}

func TestDirectoryListEndOfData(t *testing.T) {
	lister := &fakeLister{total: 130}
	d := &Directory{Lister: lister}

	calls, n, err := listAll(t, d, 300, 100)
	require.NoError(t, err)

	assert.Equal(t, 130, n)
	assert.Equal(t, int32(2), lister.calls.Load())
	assert.Len(t, calls, 2)
}

func TestDirectoryListEmpty(t *testing.T) {
	lister := &fakeLister{}
	d := &Directory{Lister: lister}

	calls, n, err := listAll(t, d, 100, 100)
	require.NoError(t, err)

	assert.Zero(t, n)
	assert.Empty(t, calls)
	assert.Equal(t, int32(1), lister.calls.Load())
}

func TestDirectoryListRateLimitedKeepsPartial(t *testing.T) {
	lister := &fakeLister{total: 1000, errAt: 2, err: statusErr("games", http.StatusTooManyRequests)}
	d := &Directory{Lister: lister}

	_, n, err := listAll(t, d, 300, 100)
	require.NoError(t, err)
	assert.Equal(t, 100, n)
}

func TestDirectoryListRateLimitedFirstPage(t *testing.T) {
	lister := &fakeLister{total: 1000, errAt: 1, err: statusErr("games", http.StatusTooManyRequests)}
	d := &Directory{Lister: lister}

	_, n, err := listAll(t, d, 300, 100)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDirectoryListFatal(t *testing.T) {
	lister := &fakeLister{total: 1000, errAt: 2, err: statusErr("games", http.StatusInternalServerError)}
	d := &Directory{Lister: lister}

	_, _, err := listAll(t, d, 300, 100)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestDirectoryListPageDelay(t *testing.T) {
	lister := &fakeLister{total: 300}
	d := &Directory{Lister: lister, PageDelay: 20 * time.Millisecond}

	start := time.Now()
	_, n, err := listAll(t, d, 300, 100)
	require.NoError(t, err)

	assert.Equal(t, 300, n)
	// Two pauses, none before the first page
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestDirectoryListCanceledDuringDelay(t *testing.T) {
	lister := &fakeLister{total: 300}
	d := &Directory{Lister: lister, PageDelay: time.Minute}

	ctx, cancel := context.WithCancel(context.Background())
	_, err := d.List(ctx, 1, 300, 100, func(int, int, int) { cancel() })

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), lister.calls.Load())
}
