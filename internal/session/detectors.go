package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/deskflow/orchestrator/internal/adapter/ticketing"
	"github.com/deskflow/orchestrator/internal/domain"
)

// Detectors runs the two periodic logout detectors that back up the
// event-driven cookie signal:
//
//   - a liveness ticker that re-runs identity resolution, catching missed
//     cookie events;
//   - a probe ticker that calls the ticketing backend and treats an
//     authorization failure as an implicit logout.
//
// All three sources funnel into the same idempotent logout handling;
// ordering between them does not matter.
type Detectors struct {
	manager *Manager
	gateway ticketing.Gateway

	livenessInterval time.Duration
	probeInterval    time.Duration
	probeTimeout     time.Duration

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewDetectors creates the periodic detectors. Intervals of zero disable
// the corresponding detector.
func NewDetectors(manager *Manager, gateway ticketing.Gateway, livenessInterval, probeInterval time.Duration) *Detectors {
	return &Detectors{
		manager:          manager,
		gateway:          gateway,
		livenessInterval: livenessInterval,
		probeInterval:    probeInterval,
		probeTimeout:     10 * time.Second,
		stop:             make(chan struct{}),
	}
}

// Start launches the detector goroutines.
func (d *Detectors) Start() {
	if d.livenessInterval > 0 {
		d.wg.Add(1)
		go d.runLiveness()
	}
	if d.probeInterval > 0 {
		d.wg.Add(1)
		go d.runProbe()
	}
}

// Stop terminates the detectors and waits for them to exit.
func (d *Detectors) Stop() {
	close(d.stop)
	d.wg.Wait()
}

func (d *Detectors) runLiveness() {
	defer d.wg.Done()
	ticker := time.NewTicker(d.livenessInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), d.probeTimeout)
			d.manager.RevalidateLiveness(ctx)
			cancel()
		}
	}
}

func (d *Detectors) runProbe() {
	defer d.wg.Done()
	ticker := time.NewTicker(d.probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stop:
			return
		case <-ticker.C:
			if d.manager.LiveSession() == nil {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), d.probeTimeout)
			err := d.gateway.Probe(ctx)
			cancel()
			switch {
			case err == nil:
				// Still authenticated.
			case errors.Is(err, domain.ErrUnauthorized):
				log.Printf("INFO: ticketing probe unauthorized, treating as logout")
				d.manager.handleLogout("probe")
			default:
				// Unreachable backend is not a logout; the liveness
				// detector and cookie signal still cover real logouts.
				log.Printf("WARN: ticketing probe failed transiently: %v", err)
			}
		}
	}
}
