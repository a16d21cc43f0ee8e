// Package backpressure implements the advisory memory gate the
// executor consults between chunks. It never preempts in-flight work; it
// only decides whether to pause before starting the next one.
package backpressure

import (
	"context"
	"math"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/shirou/gopsutil/v4/mem"

	"github.com/streamscribe/streamscribe/internal/types"
)

// MaxWait bounds how long WaitIfNeeded will sleep in total before giving
// up and letting the caller proceed anyway.
const MaxWait = 30 * time.Second

const pollInterval = 1 * time.Second

// memStatter is the subset of gopsutil/mem this package depends on, so
// tests can inject a fake memory reading.
type memStatter interface {
	ratio() (float64, error)
}

// systemMemStatter reads the process's heap ratio against its configured
// memory limit (GOMEMLIMIT) when one is set, since that is the ceiling the
// runtime will actually enforce. Without a limit there is no process-local
// "max" to ratio against, so it falls back to whole-machine residency via
// gopsutil.
type systemMemStatter struct{}

func (systemMemStatter) ratio() (float64, error) {
	if limit := debug.SetMemoryLimit(-1); limit > 0 && limit < math.MaxInt64 {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		return float64(ms.HeapAlloc) / float64(limit), nil
	}

	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.UsedPercent / 100.0, nil
}

// Gate polls resident heap ratio and advises the executor whether to pause
// or force a GC before starting the next chunk.
type Gate struct {
	budget types.MemoryBudget
	stat   memStatter
	sleep  func(time.Duration)
	gc     func()
}

// New builds a Gate using the given memory budget thresholds.
func New(budget types.MemoryBudget) *Gate {
	return &Gate{
		budget: budget,
		stat:   systemMemStatter{},
		sleep:  time.Sleep,
		gc:     runtime.GC,
	}
}

// currentRatio returns the current resident heap ratio against budget.
func (g *Gate) currentRatio() float64 {
	ratio, err := g.stat.ratio()
	if err != nil {
		// A failed memory read is treated as "no pressure" rather than an
		// error: backpressure is advisory, so a monitoring failure must
		// never block a run.
		return 0
	}
	return ratio
}

// ShouldPause reports whether the resident heap ratio has reached the
// pause threshold.
func (g *Gate) ShouldPause() bool {
	return g.currentRatio() >= g.budget.PauseRatio
}

// WaitIfNeeded blocks, polling once per second up to MaxWait, while memory
// pressure stays at or above the pause threshold. It issues a GC hint
// whenever the ratio sits between the critical and pause thresholds. It
// never returns an error: if memory pressure hasn't cleared by MaxWait,
// the caller proceeds anyway, since this gate is advisory only.
func (g *Gate) WaitIfNeeded(ctx context.Context) {
	waited := time.Duration(0)
	for waited < MaxWait {
		ratio := g.currentRatio()
		if ratio >= g.budget.CriticalRatio && ratio < g.budget.PauseRatio {
			g.gc()
		}
		if ratio < g.budget.PauseRatio {
			return
		}

		select {
		case <-ctx.Done():
			return
		default:
		}

		g.sleep(pollInterval)
		waited += pollInterval
	}
}
