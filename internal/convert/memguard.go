package convert

import (
	"runtime/debug"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/sirupsen/logrus"
)

const (
	DefaultCheckEvery       = 200
	DefaultHighWaterPercent = 85.0
)

// MemoryGuardOptions configures the checkpoints taken during accumulation.
type MemoryGuardOptions struct {
	CheckEvery       int
	HighWaterPercent float64
	// Usage returns system memory utilization in percent.
	Usage func() (float64, error)
	// Reclaim releases memory that is not part of the frame batch.
	Reclaim func()
	Logger  logrus.FieldLogger
}

// MemoryGuard relieves memory pressure while frames accumulate. It never stops accumulation.
type MemoryGuard struct {
	opts     MemoryGuardOptions
	reclaims int
}

// NewMemoryGuard fills unset options with system defaults.
func NewMemoryGuard(opts MemoryGuardOptions) *MemoryGuard {
	if opts.CheckEvery <= 0 {
		opts.CheckEvery = DefaultCheckEvery
	}
	if opts.HighWaterPercent <= 0 {
		opts.HighWaterPercent = DefaultHighWaterPercent
	}
	if opts.Usage == nil {
		opts.Usage = SystemMemoryUsage
	}
	if opts.Reclaim == nil {
		opts.Reclaim = debug.FreeOSMemory
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &MemoryGuard{opts: opts}
}

// SystemMemoryUsage reports used physical memory in percent.
func SystemMemoryUsage() (float64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.UsedPercent, nil
}

// Observe is called after every accumulated frame and reports whether it reclaimed.
func (g *MemoryGuard) Observe(accumulated int) bool {
	if accumulated <= 0 || accumulated%g.opts.CheckEvery != 0 {
		return false
	}

	usage, err := g.opts.Usage()
	if err != nil {
		g.opts.Logger.WithError(err).Debug("memory usage unavailable, retrying at next checkpoint")
		return false
	}

	log := g.opts.Logger.WithFields(logrus.Fields{
		"frames": accumulated,
		"usage":  usage,
	})
	if usage <= g.opts.HighWaterPercent {
		log.Debug("memory checkpoint")
		return false
	}

	log.Info("memory above high-water mark, reclaiming")
	g.opts.Reclaim()
	g.reclaims++
	return true
}

// Reclaims counts how often reclamation ran.
func (g *MemoryGuard) Reclaims() int {
	return g.reclaims
}
