package mpse

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/titanics/rxpse/pkg/device"
	"github.com/titanics/rxpse/pkg/store"
	"github.com/titanics/rxpse/pkg/types"
)

// ErrPollTimeout is returned when no response arrives within the instance's
// poll timeout. The job is not retractable; retry or abort policy belongs to
// the caller.
var ErrPollTimeout = errors.New("timed out waiting for device response")

// DefaultPollInterval is the delay between response polls when the instance
// config leaves PollInterval zero.
const DefaultPollInterval = 20 * time.Microsecond

// Search submits buf as one job, waits for its response, and invokes mf once
// per user binding for every match record the device returned, in response
// order. callerCtx is passed through to the callback untouched.
//
// Buffers longer than the device's maximum job length are truncated; the
// tail is not searched. A decode error is logged and whatever partial match
// data exists is still dispatched. When the device detected more matches
// than it could report, the gap is logged and counted; the excess matches
// are lost, with no software fallback.
func (in *Instance) Search(ctx context.Context, buf []byte, mf types.MatchFunc, callerCtx any) error {
	dev := in.cfg.Dev
	if dev == nil {
		return fmt.Errorf("instance %d: no device configured", in.subsetID)
	}

	if max := dev.MaxJobLength(); len(buf) > max {
		in.logger.Warn("truncating search job",
			"subset", in.subsetID, "len", len(buf), "max", max)
		buf = buf[:max]
	}

	jobID := in.reg.nextJobID()
	sid := in.subsetID
	job, err := dev.PrepareJob(device.JobSpec{
		ID:   jobID,
		Data: buf,
		// All four routing slots carry this instance's subset id; see the
		// JobSpec doc for the protocol caveat.
		Subsets: [4]uint16{sid, sid, sid, sid},
	})
	if err != nil {
		return fmt.Errorf("preparing job %d: %w", jobID, err)
	}

	if err := dev.EnqueueJob(in.cfg.Queue, job); err != nil {
		return fmt.Errorf("enqueueing job %d: %w", jobID, err)
	}
	if _, _, err := dev.DispatchJobs(in.cfg.Queue); err != nil {
		return fmt.Errorf("dispatching job %d: %w", jobID, err)
	}

	resp, err := in.poll(ctx, jobID)
	if err != nil {
		return err
	}
	defer dev.FreeBuffer(resp)

	data, err := dev.ResponseData(resp)
	if err != nil {
		// Keep going with whatever partial match data exists.
		in.logger.Error("decoding device response", "job", jobID, "error", err)
	}
	if data == nil {
		return nil
	}

	in.dispatch(jobID, data, mf, callerCtx)
	return nil
}

// poll waits for one response on the instance queue, bounded by the
// configured timeout and the caller's context.
func (in *Instance) poll(ctx context.Context, jobID uint64) (*device.Response, error) {
	interval := in.cfg.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	var deadline time.Time
	if in.cfg.PollTimeout > 0 {
		deadline = time.Now().Add(in.cfg.PollTimeout)
	}

	for {
		resps, err := in.cfg.Dev.GetResponses(in.cfg.Queue, 1)
		if err != nil {
			return nil, fmt.Errorf("polling for job %d: %w", jobID, err)
		}
		if len(resps) > 0 {
			return resps[0], nil
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return nil, fmt.Errorf("job %d: %w", jobID, ErrPollTimeout)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}
}

// dispatch fans the returned match records out to the host callback, one
// invocation per user binding on the matched pattern.
func (in *Instance) dispatch(jobID uint64, data *device.ResponseData, mf types.MatchFunc, callerCtx any) {
	if len(data.Matches) == 0 {
		return
	}

	if data.DetectedMatches > uint32(len(data.Matches)) {
		in.logger.Warn("match limit exceeded",
			"job", jobID,
			"detected", data.DetectedMatches,
			"returned", len(data.Matches))
		in.reg.recordMatchLimit()
	}

	for _, m := range data.Matches {
		p := in.ruleIDs[m.RuleID]
		if p == nil {
			in.logger.Warn("response references unknown rule",
				"job", jobID, "rule", m.RuleID)
			continue
		}

		to := m.End()
		for _, b := range p.Bindings {
			mf(b.User, b.Tree, to, callerCtx, b.List)
		}

		if in.cfg.Store != nil {
			err := in.cfg.Store.AddEvent(store.Event{
				JobID:    jobID,
				SubsetID: in.subsetID,
				RuleID:   m.RuleID,
				To:       to,
				At:       time.Now(),
			})
			if err != nil {
				in.logger.Error("recording match event", "job", jobID, "error", err)
			}
		}
	}
}
