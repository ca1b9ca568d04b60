package media

import (
	"context"
	"math"
	"sync"
	"time"
)

// Element is a seekable decoder handle for one media file.
type Element interface {
	MediaFileID() string
	// Seek moves the decoder towards t and returns once it has settled or
	// ctx is done.
	Seek(ctx context.Context, t float64) error
	CurrentTime() float64
}

// Elements hands out the element of a media file.
type Elements interface {
	Element(mediaFileID string) (Element, bool)
}

// ClockElement is a decoder stand-in for headless operation. Seeks land
// exactly on the requested time after Latency.
type ClockElement struct {
	id      string
	latency time.Duration

	mu  sync.Mutex
	now float64
}

func NewClockElement(mediaFileID string, latency time.Duration) *ClockElement {
	return &ClockElement{id: mediaFileID, latency: latency}
}

func (e *ClockElement) MediaFileID() string {
	return e.id
}

func (e *ClockElement) Seek(ctx context.Context, t float64) error {
	if e.latency > 0 {
		timer := time.NewTimer(e.latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	e.now = math.Max(0, t)
	e.mu.Unlock()
	return nil
}

func (e *ClockElement) CurrentTime() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now
}

// Pool creates one ClockElement per known media file on first use.
type Pool struct {
	service *Service
	latency time.Duration

	mu       sync.Mutex
	elements map[string]Element
}

func NewPool(service *Service, latency time.Duration) *Pool {
	return &Pool{service: service, latency: latency, elements: make(map[string]Element)}
}

func (p *Pool) Element(mediaFileID string) (Element, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if el, ok := p.elements[mediaFileID]; ok {
		return el, true
	}
	if _, ok := p.service.lookup(mediaFileID); !ok {
		return nil, false
	}
	el := NewClockElement(mediaFileID, p.latency)
	p.elements[mediaFileID] = el
	return el, true
}

// Forget drops the element of a removed media file.
func (p *Pool) Forget(mediaFileID string) {
	p.mu.Lock()
	delete(p.elements, mediaFileID)
	p.mu.Unlock()
}
