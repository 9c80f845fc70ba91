package workers

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

// HealthWorker logs the server's own CPU and memory footprint at a fixed
// interval, giving a minimal runtime signal without an external metrics stack.
type HealthWorker struct {
	log      *slog.Logger
	interval time.Duration
}

func NewHealthWorker(log *slog.Logger, interval time.Duration) *HealthWorker {
	return &HealthWorker{log: log, interval: interval}
}

func (w *HealthWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			memInfo, err := p.MemoryInfo()
			if err != nil {
				w.log.Warn("Failed to collect memory stats", "error", err)
				continue
			}
			cpu, err := p.CPUPercent()
			if err != nil {
				w.log.Warn("Failed to collect cpu stats", "error", err)
				continue
			}
			w.log.Info("Process health",
				"rss_mb", memInfo.RSS/(1024*1024),
				"cpu_percent", cpu,
			)
		}
	}
}
