package images

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/broadcast-engine/internal/pkg/logger"
)

type fakeStore struct {
	mu      sync.Mutex
	uploads int
	fail    bool
	failFor map[string]bool // checksum -> fail
}

func (f *fakeStore) Upload(_ context.Context, ownerID, contentType string, data []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sum := sha256.Sum256(data)
	checksum := hex.EncodeToString(sum[:])
	if f.fail || f.failFor[checksum] {
		return "", errors.New("blob store unavailable")
	}
	f.uploads++
	return fmt.Sprintf("https://img.test/%s/%s", ownerID, checksum[:12]), nil
}

func testExternalizer(store BlobStore) *Externalizer {
	return NewExternalizer(store, time.Second, logger.New(io.Discard, logger.ERROR))
}

func dataURI(payload string) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte(payload))
}

func TestExternalizeRewritesInlineImage(t *testing.T) {
	store := &fakeStore{}
	e := testExternalizer(store)

	html := `<p>hi</p><img src="` + dataURI("payload-1") + `">`
	res := e.Externalize(context.Background(), "owner-1", html)

	assert.Equal(t, 1, store.uploads)
	require.Len(t, res.Rewrites, 1)
	assert.Equal(t, 1, res.Rewrites[0].Occurrences)
	assert.NotContains(t, res.HTML, "base64")
	assert.Contains(t, res.HTML, res.Rewrites[0].NewURL)
	assert.Empty(t, res.Failures)
}

func TestExternalizeDedupsIdenticalPayloads(t *testing.T) {
	store := &fakeStore{}
	e := testExternalizer(store)

	uri := dataURI("same-bytes")
	html := `<img src="` + uri + `"><img src="` + uri + `">`
	res := e.Externalize(context.Background(), "owner-1", html)

	assert.Equal(t, 1, store.uploads, "identical payloads upload once")
	require.Len(t, res.Rewrites, 1)
	assert.Equal(t, 2, res.Rewrites[0].Occurrences)
	assert.Equal(t, 2, strings.Count(res.HTML, res.Rewrites[0].NewURL))
}

func TestExternalizeDistinctPayloads(t *testing.T) {
	store := &fakeStore{}
	e := testExternalizer(store)

	html := `<img src="` + dataURI("one") + `"><img src="` + dataURI("two") + `"><img src="` + dataURI("one") + `">`
	res := e.Externalize(context.Background(), "owner-1", html)

	assert.Equal(t, 2, store.uploads, "three occurrences, two distinct payloads")
	assert.Len(t, res.Rewrites, 2)
}

func TestExternalizeFailureIsolated(t *testing.T) {
	bad := dataURI("bad-image")
	badData, _ := base64.StdEncoding.DecodeString(strings.TrimPrefix(bad, "data:image/png;base64,"))
	sum := sha256.Sum256(badData)

	store := &fakeStore{failFor: map[string]bool{hex.EncodeToString(sum[:]): true}}
	e := testExternalizer(store)

	html := `<img src="` + bad + `"><img src="` + dataURI("good-image") + `">`
	res := e.Externalize(context.Background(), "owner-1", html)

	require.Len(t, res.Failures, 1)
	require.Len(t, res.Rewrites, 1)
	assert.Contains(t, res.HTML, bad, "failed payload keeps its original data URI")
	assert.Contains(t, res.HTML, res.Rewrites[0].NewURL)
}

func TestExternalizeNoInlineImages(t *testing.T) {
	store := &fakeStore{}
	e := testExternalizer(store)

	html := `<p>text</p><img src="https://cdn.test/already-hosted.png">`
	res := e.Externalize(context.Background(), "owner-1", html)

	assert.Equal(t, 0, store.uploads)
	assert.Equal(t, html, res.HTML)
	assert.Empty(t, res.Rewrites)
}

func TestExternalizeInvalidBase64LeftAlone(t *testing.T) {
	store := &fakeStore{}
	e := testExternalizer(store)

	html := `<img src="data:image/png;base64,%%%not-base64%%%">`
	res := e.Externalize(context.Background(), "owner-1", html)

	assert.Equal(t, 0, store.uploads)
	assert.Equal(t, html, res.HTML)
}
