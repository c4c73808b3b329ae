package blob

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

const progressBuffer = 16

// Uploader names uploads and reports their progress.
type Uploader struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// NewUploader returns an Uploader writing to store.
func NewUploader(store Store, logger *slog.Logger) *Uploader {
	return &Uploader{store: store, logger: logger, now: time.Now}
}

// Upload is an upload in flight.
//
// Progress delivers percentages in [0, 100] that never decrease. The final
// value 100 is sent only on success, after which the channel is closed; on
// failure the channel is closed without it. Slow readers may miss
// intermediate values but never the final one.
type Upload struct {
	progress chan float64
	done     chan struct{}
	obj      Object
	err      error
}

func (up *Upload) Progress() <-chan float64 { return up.progress }

// Done is closed once the upload has finished either way.
func (up *Upload) Done() <-chan struct{} { return up.done }

// Wait blocks until the upload finishes and returns its result.
func (up *Upload) Wait() (Object, error) {
	<-up.done
	return up.obj, up.err
}

// UploadWithProgress starts uploading f under prefix in the background.
func (u *Uploader) UploadWithProgress(ctx context.Context, f File, prefix string) *Upload {
	up := &Upload{
		progress: make(chan float64, progressBuffer),
		done:     make(chan struct{}),
	}
	key := ObjectPath(prefix, f.Name, u.now())

	go func() {
		defer close(up.done)
		defer close(up.progress)

		if f.Body == nil {
			up.err = fmt.Errorf("blob: uploading %s: empty body", key)
			return
		}
		rep := &reporter{ch: up.progress, size: f.Size}
		body := &progressReader{r: f.Body, report: rep.report}

		if err := u.store.Put(ctx, key, body, f.Size, f.ContentType); err != nil {
			up.err = fmt.Errorf("blob: uploading %s: %w", key, err)
			return
		}
		url, err := u.store.URL(ctx, key)
		if err != nil {
			up.err = fmt.Errorf("blob: resolving url for %s: %w", key, err)
			return
		}

		up.obj = Object{Path: key, URL: url}
		rep.finish()
		u.logger.Debug("blob uploaded",
			slog.String("path", key),
			slog.Int64("size", f.Size),
		)
	}()

	return up
}

// Upload uploads f and waits for it to finish.
func (u *Uploader) Upload(ctx context.Context, f File, prefix string) (Object, error) {
	return u.UploadWithProgress(ctx, f, prefix).Wait()
}

// Delete removes the blob stored at path.
func (u *Uploader) Delete(ctx context.Context, path string) error {
	if err := u.store.Delete(ctx, path); err != nil {
		return fmt.Errorf("blob: deleting %s: %w", path, err)
	}
	return nil
}

// reporter turns byte counts into the non-decreasing percentage stream.
// Percentages below completion are capped at 99 so 100 always means done.
type reporter struct {
	mu   sync.Mutex
	ch   chan float64
	size int64
	high float64
}

func (r *reporter) report(read int64) {
	if r.size <= 0 {
		return
	}
	pct := float64(read) * 100 / float64(r.size)
	if pct > 99 {
		pct = 99
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Signing passes can rewind the body; only forward movement is reported.
	if pct <= r.high {
		return
	}
	r.high = pct
	select {
	case r.ch <- pct:
	default:
	}
}

// finish delivers 100, dropping the oldest buffered value if the reader has
// fallen behind. Only the upload goroutine sends on ch, so one freed slot
// is enough.
func (r *reporter) finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.high = 100
	select {
	case r.ch <- 100:
		return
	default:
	}
	select {
	case <-r.ch:
	default:
	}
	r.ch <- 100
}

// progressReader counts bytes as the store consumes the body.
type progressReader struct {
	r      io.ReadSeeker
	read   int64
	report func(int64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.read += int64(n)
		p.report(p.read)
	}
	return n, err
}

func (p *progressReader) Seek(offset int64, whence int) (int64, error) {
	pos, err := p.r.Seek(offset, whence)
	if err == nil {
		p.read = pos
	}
	return pos, err
}
