package webhooks

import (
	"context"
	"log"
	"time"
)

// Scheduler retries failed webhook deliveries on a background interval.
type Scheduler struct {
	service  *Service
	interval time.Duration
	ticker   *time.Ticker
	done     chan struct{}
}

func NewScheduler(svc *Service, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &Scheduler{service: svc, interval: interval}
}

// Start begins the background ticker for retrying webhook deliveries.
func (ws *Scheduler) Start() {
	ws.ticker = time.NewTicker(ws.interval)
	ws.done = make(chan struct{})
	go ws.run()
	log.Printf("Webhook retry scheduler started (%s interval)", ws.interval)
}

// Stop halts the background ticker.
func (ws *Scheduler) Stop() {
	if ws.ticker != nil {
		ws.ticker.Stop()
	}
	if ws.done != nil {
		close(ws.done)
	}
}

func (ws *Scheduler) run() {
	for {
		select {
		case <-ws.done:
			return
		case <-ws.ticker.C:
			ws.sweep()
		}
	}
}

func (ws *Scheduler) sweep() {
	n, err := ws.service.RetryDueDeliveries(context.Background(), time.Now().UTC())
	if err != nil {
		log.Printf("ERROR: webhook retry sweep: %v", err)
		return
	}
	if n > 0 {
		log.Printf("Webhook retry sweep dispatched %d deliveries", n)
	}
}
