// Package images rewrites inline base64 image payloads in rendered
// HTML into hosted URLs. Email providers reject or penalize large
// inline payloads, so every data URI is uploaded to the blob store and
// replaced with a reference before the transport call.
package images

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"regexp"
	"time"

	_ "golang.org/x/image/webp" // WebP decode support

	"github.com/ignite/broadcast-engine/internal/pkg/logger"
)

// BlobStore uploads a binary payload scoped to an owner and returns a
// durable public URL.
type BlobStore interface {
	Upload(ctx context.Context, ownerID, contentType string, data []byte) (string, error)
}

// dataURIPattern matches src attributes holding base64 image data.
var dataURIPattern = regexp.MustCompile(`src="(data:image/(png|jpeg|jpg|gif|webp);base64,([A-Za-z0-9+/=\s]+?))"`)

// Rewrite records one payload that was externalized.
type Rewrite struct {
	// OriginalRef identifies the replaced payload by content checksum.
	OriginalRef string `json:"original_ref"`
	NewURL      string `json:"new_url"`
	ContentType string `json:"content_type"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
	Occurrences int    `json:"occurrences"`
}

// UploadFailure records one payload whose upload failed. Its
// occurrences keep their original data URIs.
type UploadFailure struct {
	Checksum string `json:"checksum"`
	Reason   string `json:"reason"`
}

// Result is the outcome of one externalization pass.
type Result struct {
	HTML     string
	Rewrites []Rewrite
	Failures []UploadFailure
}

// Externalizer scans rendered HTML for inline images and uploads each
// distinct payload exactly once.
type Externalizer struct {
	store         BlobStore
	log           *logger.Logger
	uploadTimeout time.Duration
}

// NewExternalizer creates an externalizer over the given blob store.
func NewExternalizer(store BlobStore, uploadTimeout time.Duration, log *logger.Logger) *Externalizer {
	if uploadTimeout <= 0 {
		uploadTimeout = 20 * time.Second
	}
	return &Externalizer{store: store, log: log.WithComponent("images"), uploadTimeout: uploadTimeout}
}

// Passthrough leaves inline payloads untouched. Used when no blob
// store is configured.
type Passthrough struct{}

// Externalize returns the HTML unchanged.
func (Passthrough) Externalize(_ context.Context, _, html string) Result {
	return Result{HTML: html}
}

type payload struct {
	checksum    string
	contentType string
	data        []byte
	occurrences int
	url         string // set after a successful upload
	failed      bool
}

// Externalize uploads every distinct inline image payload in html and
// rewrites all occurrences to the resulting URLs. A failed upload
// leaves that payload's occurrences untouched and is recorded on the
// result; it never aborts the pass.
func (e *Externalizer) Externalize(ctx context.Context, ownerID, html string) Result {
	matches := dataURIPattern.FindAllStringSubmatch(html, -1)
	if len(matches) == 0 {
		return Result{HTML: html}
	}

	// First pass: collect distinct payloads by content checksum so the
	// same image appearing N times is uploaded once.
	distinct := make(map[string]*payload)
	order := make([]string, 0, len(matches))
	for _, m := range matches {
		subtype, b64 := m[2], m[3]
		data, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			// Not decodable; leave the original URI in place.
			continue
		}
		sum := sha256.Sum256(data)
		checksum := hex.EncodeToString(sum[:])
		p, ok := distinct[checksum]
		if !ok {
			if subtype == "jpg" {
				subtype = "jpeg"
			}
			p = &payload{checksum: checksum, contentType: "image/" + subtype, data: data}
			distinct[checksum] = p
			order = append(order, checksum)
		}
		p.occurrences++
	}

	res := Result{}
	for _, checksum := range order {
		p := distinct[checksum]
		url, err := e.upload(ctx, ownerID, p)
		if err != nil {
			p.failed = true
			res.Failures = append(res.Failures, UploadFailure{Checksum: checksum, Reason: err.Error()})
			e.log.Warn("image upload failed, keeping inline payload",
				"owner_id", ownerID, "checksum", checksum, "error", err.Error())
			continue
		}
		p.url = url

		rw := Rewrite{
			OriginalRef: checksum,
			NewURL:      url,
			ContentType: p.contentType,
			Occurrences: p.occurrences,
		}
		if cfg, _, err := image.DecodeConfig(bytes.NewReader(p.data)); err == nil {
			rw.Width = cfg.Width
			rw.Height = cfg.Height
		}
		res.Rewrites = append(res.Rewrites, rw)
	}

	// Second pass: rewrite every occurrence whose payload uploaded.
	res.HTML = dataURIPattern.ReplaceAllStringFunc(html, func(match string) string {
		m := dataURIPattern.FindStringSubmatch(match)
		data, err := base64.StdEncoding.DecodeString(m[3])
		if err != nil {
			return match
		}
		sum := sha256.Sum256(data)
		p := distinct[hex.EncodeToString(sum[:])]
		if p == nil || p.failed || p.url == "" {
			return match
		}
		return `src="` + p.url + `"`
	})

	return res
}

func (e *Externalizer) upload(ctx context.Context, ownerID string, p *payload) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.uploadTimeout)
	defer cancel()
	return e.store.Upload(ctx, ownerID, p.contentType, p.data)
}
