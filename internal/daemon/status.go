package daemon

import "time"

// Status is a point-in-time snapshot of the daemon
type Status struct {
	Running bool          `json:"running"`
	PID     int           `json:"pid"`
	Uptime  time.Duration `json:"uptime"`
	Tools   int           `json:"tools"`
	Sources int           `json:"sources"`
}

// Status reports the daemon's current state
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := Status{
		Running: d.running,
		Tools:   d.executor.Count(),
		Sources: d.cache.Len(),
	}
	if d.running {
		status.Uptime = time.Since(d.startTime)
		if pid, err := d.lifecycle.GetPID(); err == nil {
			status.PID = pid
		}
	}
	return status
}
