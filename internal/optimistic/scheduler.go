package optimistic

import (
	"context"
	"time"

	"taskboard/internal/model"
)

// backoff returns the wait before the next attempt after attempts failures.
func (m *Manager) backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	return m.baseDelay << (attempts - 1)
}

// startLocked launches an attempt for p under its current epoch.
func (m *Manager) startLocked(p *pending) {
	m.wg.Add(1)
	go m.attempt(p.token, p.epoch)
}

// scheduleLocked arms the backoff timer for p. Any earlier timer is stopped first so
// only one timer is ever pending per token.
func (m *Manager) scheduleLocked(p *pending, delay time.Duration) {
	if p.timer != nil {
		p.timer.Stop()
	}
	token, epoch := p.token, p.epoch
	p.timer = m.clock.AfterFunc(delay, func() { m.fire(token, epoch) })
}

// fenceLocked invalidates whatever p has in flight: its timer is stopped, a running
// request is canceled, and any late result is ignored.
func (m *Manager) fenceLocked(p *pending) {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	if p.cancelAttempt != nil {
		p.cancelAttempt()
		p.cancelAttempt = nil
	}
	p.epoch++
}

// fire runs on the clock's timer goroutine, so the request itself is handed off.
func (m *Manager) fire(token string, epoch uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.wg.Add(1)
	go m.attempt(token, epoch)
}

// attempt sends one create request and applies the outcome. Callers must have
// done wg.Add(1).
func (m *Manager) attempt(token string, epoch uint64) {
	defer m.wg.Done()

	m.mu.Lock()
	p, ok := m.queue[token]
	if !ok || p.epoch != epoch || m.closed {
		m.mu.Unlock()
		return
	}
	p.timer = nil
	ctx, cancel := context.WithTimeout(m.ctx, m.attemptTimeout)
	p.cancelAttempt = cancel
	req := p.req
	localID := p.localID
	m.mu.Unlock()

	start := m.clock.Now()
	rec, err := m.creator.CreateTask(ctx, req)
	cancel()
	elapsed := m.clock.Since(start)

	m.mu.Lock()
	defer m.mu.Unlock()

	log := m.log.WithValues("localID", localID, "token", token)
	p, ok = m.queue[token]
	if !ok || p.epoch != epoch {
		log.V(1).Info("dropping result of superseded attempt", "succeeded", err == nil)
		return
	}
	p.cancelAttempt = nil

	if err == nil {
		m.metrics.observeAttempt("success", elapsed)
		delete(m.queue, token)
		delete(m.byLocal, localID)
		m.metrics.addPending(-1)
		reconcileEntry(m.cache, localID, p.position, rec)
		if m.onConfirmed != nil {
			m.onConfirmed(localID, rec)
		}
		m.broadcastLocked()
		log.V(1).Info("task confirmed", "id", rec.ID, "attempts", p.attempts+1)
		return
	}

	m.metrics.observeAttempt("failure", elapsed)
	p.attempts++
	if p.attempts >= m.maxRetries {
		p.state = model.SyncError
		markEntry(m.cache, localID, model.SyncError)
		m.metrics.incExhausted()
		m.broadcastLocked()
		log.Error(err, "task creation failed, waiting for retry or cancel", "attempts", p.attempts)
		return
	}

	delay := m.backoff(p.attempts)
	log.V(1).Info("create attempt failed, backing off", "attempts", p.attempts, "delay", delay, "err", err.Error())
	m.scheduleLocked(p, delay)
}
