// Package delivery drives eligible broadcasts through the transport:
// the executor claims and sends a single broadcast, the poller finds
// due scheduled broadcasts, and the reconciler sweeps up anything a
// crashed process left stuck in sending.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/broadcast-engine/internal/domain"
	"github.com/ignite/broadcast-engine/internal/images"
	"github.com/ignite/broadcast-engine/internal/pkg/logger"
	"github.com/ignite/broadcast-engine/internal/pkg/tasks"
	"github.com/ignite/broadcast-engine/internal/richtext"
	"github.com/ignite/broadcast-engine/internal/service/broadcast"
	"github.com/ignite/broadcast-engine/internal/transport"
)

// Externalizer rewrites inline image payloads in rendered HTML.
// Implemented by images.Externalizer.
type Externalizer interface {
	Externalize(ctx context.Context, ownerID, html string) images.Result
}

// Executor performs one complete broadcast delivery: claim, render,
// transport call, finalize.
type Executor struct {
	repo         broadcast.Repository
	transport    transport.Transport
	externalizer Externalizer
	personalizer *richtext.Personalizer

	fromAddress      string
	fromName         string
	transportTimeout time.Duration

	tasks *tasks.Supervisor
	log   *logger.Logger
}

// NewExecutor creates a delivery executor.
func NewExecutor(repo broadcast.Repository, tr transport.Transport, ext Externalizer, fromAddress, fromName string, transportTimeout time.Duration, log *logger.Logger) *Executor {
	if transportTimeout <= 0 {
		transportTimeout = 30 * time.Second
	}
	return &Executor{
		repo:             repo,
		transport:        tr,
		externalizer:     ext,
		personalizer:     richtext.NewPersonalizer(),
		fromAddress:      fromAddress,
		fromName:         fromName,
		transportTimeout: transportTimeout,
		tasks:            tasks.NewSupervisor(log),
		log:              log.WithComponent("delivery"),
	}
}

// Close waits for detached side effects (cache writes) to finish.
func (e *Executor) Close() {
	e.tasks.Close()
}

// Execute sends one broadcast. The claim is the atomic conditional
// status update in the repository; when it fails with ErrNotClaimed a
// concurrent sender already owns the broadcast and this call is a
// no-op. Whatever happens after a successful claim, the broadcast
// never stays in sending: the deferred finalizer fails it on any path
// that did not explicitly finalize.
func (e *Executor) Execute(ctx context.Context, broadcastID string) (err error) {
	b, err := e.repo.ClaimSending(ctx, broadcastID, domain.SendEligibleStatuses())
	if err != nil {
		return err
	}

	finalized := false
	defer func() {
		if finalized {
			return
		}
		// Cleanup must run even when ctx is already canceled or the
		// send path panicked.
		cleanup, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if mfErr := e.repo.MarkFailed(cleanup, broadcastID); mfErr != nil {
			e.log.Error("failed to finalize broadcast after error",
				"broadcast_id", broadcastID, "error", mfErr.Error())
		}
		if r := recover(); r != nil {
			err = fmt.Errorf("delivery panicked: %v", r)
		}
	}()

	if len(b.Recipients) == 0 {
		finalized = true
		if mfErr := e.repo.MarkFailed(ctx, broadcastID); mfErr != nil {
			return mfErr
		}
		return fmt.Errorf("broadcast %s claimed with no recipients", broadcastID)
	}

	html := e.renderContent(ctx, b)
	subject := e.personalize(b.Subject)
	html = e.personalize(html)

	sendCtx, cancel := context.WithTimeout(ctx, e.transportTimeout)
	defer cancel()

	res, sendErr := e.transport.Send(sendCtx, transport.Message{
		From:     e.fromAddress,
		FromName: e.fromName,
		To:       b.Recipients,
		Subject:  subject,
		HTML:     html,
		Tags:     map[string]string{"broadcast_id": b.ID},
	})
	if sendErr != nil {
		finalized = true
		cleanup, cancelCleanup := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancelCleanup()
		if mfErr := e.repo.MarkFailed(cleanup, broadcastID); mfErr != nil {
			e.log.Error("failed to mark broadcast failed",
				"broadcast_id", broadcastID, "error", mfErr.Error())
		}
		e.log.Warn("transport call failed",
			"broadcast_id", broadcastID, "recipients", fmt.Sprintf("%d", len(b.Recipients)), "error", sendErr.Error())
		return fmt.Errorf("transport: %w", sendErr)
	}

	if err := e.repo.MarkSent(ctx, broadcastID, res.ProviderID, time.Now().UTC()); err != nil {
		// The deferred finalizer moves the broadcast to failed so it
		// does not stay stuck in sending.
		return fmt.Errorf("finalizing sent broadcast: %w", err)
	}
	finalized = true

	e.log.Info("broadcast sent",
		"broadcast_id", broadcastID,
		"provider_reference", res.ProviderID,
		"recipients", fmt.Sprintf("%d", len(b.Recipients)))
	return nil
}

// renderContent returns transport-ready HTML, reusing the cached
// render when present. A fresh render is externalized and cached in
// the background; the send never waits on the cache write.
func (e *Executor) renderContent(ctx context.Context, b *domain.Broadcast) string {
	if b.ContentHTML != nil && *b.ContentHTML != "" {
		return *b.ContentHTML
	}

	html := richtext.Render(b.Content)
	res := e.externalizer.Externalize(ctx, b.OwnerID, html)
	for _, f := range res.Failures {
		e.log.Warn("inline image kept after upload failure",
			"broadcast_id", b.ID, "checksum", f.Checksum, "reason", f.Reason)
	}
	html = res.HTML

	broadcastID := b.ID
	e.tasks.Go("cache-rendered-html", 10*time.Second, func(ctx context.Context) error {
		return e.repo.SaveRenderedHTML(ctx, broadcastID, html)
	})
	return html
}

// personalize applies the Liquid pass in lax mode: a template error
// falls back to the raw source rather than blocking the send.
func (e *Executor) personalize(source string) string {
	out, err := e.personalizer.Apply(source, map[string]interface{}{})
	if err != nil {
		e.log.Warn("personalization failed, sending raw content", "error", err.Error())
		return source
	}
	return out
}

// IsNotClaimed reports whether err means a concurrent sender already
// claimed the broadcast.
func IsNotClaimed(err error) bool {
	return errors.Is(err, broadcast.ErrNotClaimed)
}
