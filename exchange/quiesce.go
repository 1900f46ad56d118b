package exchange

import (
	"context"
	"time"

	"github.com/armon/circbuf"
)

// quiesce implements the quiesce waiter: wait for the
// partition-release future and the lock-release future of the previous
// topology version, dumping diagnostics on exponentially backed-off
// timeouts but never giving up. "Unbounded wait with observability" is
// the deliberate design: aborting risks diverging ownership.
func (e *Exchange) quiesce(ctx context.Context) error {
	if e.deps == nil || e.deps.Quiesce == nil {
		return nil
	}
	start := time.Now()
	defer emitQuiesceTiming(start)

	relCh := e.deps.Quiesce.PartitionReleaseFuture(ctx, e.id.TopVer)
	if err := e.waitWithDumps(ctx, relCh, "partition release"); err != nil {
		return err
	}

	if e.deps.WriteBehind != nil {
		if err := e.deps.WriteBehind.Flush(ctx); err != nil {
			return wrapFatal(e.id, err)
		}
	}

	lockCh := e.deps.Quiesce.FinishLocks(ctx, e.id.TopVer)
	return e.waitWithDumps(ctx, lockCh, "lock release")
}

// waitWithDumps polls ch, doubling the dump interval (capped at
// cfg.LongOpDumpTimeoutLimit) each time it fires, and writes the
// collaborator's diagnostic text into a bounded ring buffer so a stuck
// wait cannot accumulate unbounded log volume.
func (e *Exchange) waitWithDumps(ctx context.Context, ch <-chan struct{}, label string) error {
	timeout := e.cfg.firstDumpTimeout()
	buf, _ := circbuf.NewBuffer(e.cfg.DiagnosticBufSize)
	waitStart := time.Now()

	for {
		select {
		case <-ch:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(timeout):
			buf.Reset()
			if e.cfg.ReleaseFutureDumpThreshold > 0 && time.Since(waitStart) >= e.cfg.ReleaseFutureDumpThreshold {
				dump := e.deps.Quiesce.Dump()
				buf.Write([]byte(dump))
			}
			e.log.Printf("[WARN] exchange %s: timed out after %s waiting on %s; pending:\n%s",
				e.id, timeout, label, buf.String())
			if e.cfg.ThreadDumpOnExchangeTimeout {
				e.log.Printf("[WARN] exchange %s: thread dump requested but not wired to a profiler in this build", e.id)
			}

			timeout *= 2
			if timeout > e.cfg.LongOpDumpTimeoutLimit {
				timeout = e.cfg.LongOpDumpTimeoutLimit
			}
		}
	}
}
