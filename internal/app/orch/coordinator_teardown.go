package orch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/domain"
)

// Leave ends the current session. It is safe in every state and on repeated
// calls, and waits until the session settles or ctx ends.
func (c *Coordinator) Leave(ctx context.Context) error {
	var settled <-chan struct{}
	err := c.call(ctx, func() error {
		settled = c.leave()
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrClosed) {
			return nil
		}
		return err
	}
	if settled == nil {
		return nil
	}
	select {
	case <-settled:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) leave() <-chan struct{} {
	s := c.sess
	if s == nil || s.state.Settled() {
		return nil
	}
	switch s.state {
	case domain.StateConnecting:
		// The pending step unwinds the session when it completes.
		s.cancelled = true
		s.joinCancel()
		c.metrics.Join("cancelled")
		s.log(log.Info()).Msg("leave requested while connecting")
		c.transition(s, domain.StateLeaving)
		time.AfterFunc(c.opts.LeaveTimeout, func() {
			c.post(func() { c.onLeaveTimeout(s) })
		})
	case domain.StateJoined:
		c.teardown(s, "user", nil)
	}
	return s.settled
}

// onLeaveTimeout releases a cancelled session whose pending connect step
// never came back. Results that still arrive are released as stale.
func (c *Coordinator) onLeaveTimeout(s *session) {
	if s != c.sess || s.state != domain.StateLeaving || s.tearingDown {
		return
	}
	s.log(log.Warn()).Dur("timeout", c.opts.LeaveTimeout).Msg("connect step ignored cancellation, releasing")
	c.teardown(s, "cancelled", nil)
}

// teardown runs the Leaving path: unpublish, unsubscribe, transport leave and
// resource release on a helper goroutine, then Left on the loop.
func (c *Coordinator) teardown(s *session, cause string, fault error) {
	if s.tearingDown {
		return
	}
	s.tearingDown = true
	if fault != nil {
		s.lastErr = fault
		s.log(log.Warn()).Err(fault).Msg("transport fault, tearing down")
	}
	s.cancel()
	s.sampler.Stop()
	c.metrics.Leave(cause)
	c.transition(s, domain.StateLeaving)

	plan := s.detach()
	go func() {
		c.runTeardown(plan)
		c.complete(func() { c.finishTeardown(s) }, nil)
	}()
}

func (c *Coordinator) finishTeardown(s *session) {
	if s.state.Settled() {
		return
	}
	s.cancel()
	s.roster.Clear()
	s.mic, s.video = false, false
	c.transition(s, domain.StateLeft)
}

// runTeardown releases every resource in p. Failures are logged and never
// stop the remaining steps.
func (c *Coordinator) runTeardown(p teardownPlan) {
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.LeaveTimeout)
	defer cancel()

	if p.inflight != nil {
		c.step("subscribe_wait", wait(ctx, p.inflight))
	}
	t := p.transport
	if t != nil && p.unpublish {
		c.step("unpublish", t.Unpublish(ctx, p.tracks))
	}
	if t != nil {
		for _, sub := range p.subs {
			c.step("unsubscribe", t.Unsubscribe(ctx, sub.ID, sub.Kind))
		}
		c.step("leave", t.Leave(ctx))
	}
	for _, track := range p.tracks.All() {
		c.step("close_track", track.Close())
	}
	if p.stopListen != nil {
		p.stopListen()
	}
	if t != nil {
		c.step("close", t.Close())
	}
}

func wait(ctx context.Context, wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) step(name string, err error) {
	if err == nil {
		return
	}
	c.metrics.TeardownError(name)
	log.Warn().Str("module", "orch").Str("step", name).Err(err).Msg("release step failed")
}
