// Package stream serves rendered frames as an MJPEG feed.
package stream

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/hybridgroup/mjpeg"
	"gocv.io/x/gocv"

	"camwatch/internal/logger"
	"camwatch/internal/service/capture"
)

// Publisher takes rendered frames from the loop and encodes them to JPEG on
// its own goroutine. PublishFrame only copies the frame into a one-slot
// buffer, so a slow encoder skips frames instead of slowing the loop.
type Publisher struct {
	slot    *capture.FrameBuffer
	stream  *mjpeg.Stream
	log     *logger.Logger
	seq     atomic.Uint64
	encoded atomic.Uint64
}

// NewPublisher creates an idle publisher; call Run to start encoding.
func NewPublisher(log *logger.Logger) *Publisher {
	return &Publisher{
		slot:   capture.NewFrameBuffer(),
		stream: mjpeg.NewStream(),
		log:    log,
	}
}

// PublishFrame copies frame; the caller keeps ownership.
func (p *Publisher) PublishFrame(frame gocv.Mat) {
	if frame.Empty() {
		return
	}
	p.slot.Store(capture.NewFrame(frame.Clone(), p.seq.Add(1), time.Now()))
}

// Run encodes the newest frame after every update until ctx ends.
func (p *Publisher) Run(ctx context.Context) {
	defer p.slot.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.slot.Updated():
		}

		f, ok := p.slot.Read()
		if !ok {
			continue
		}
		buf, err := gocv.IMEncode(gocv.JPEGFileExt, f.Mat)
		f.Close()
		if err != nil {
			p.log.Warning("Failed to encode stream frame: %v", err)
			continue
		}
		p.stream.UpdateJPEG(append([]byte(nil), buf.GetBytes()...))
		buf.Close()
		p.encoded.Add(1)
	}
}

// Encoded counts frames pushed to the stream.
func (p *Publisher) Encoded() uint64 {
	return p.encoded.Load()
}

// ServeHTTP streams multipart JPEG to the client.
func (p *Publisher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.stream.ServeHTTP(w, r)
}
