package workers

import (
	"context"
	"log/slog"
	"os"
	"reflect"
	"time"

	"github.com/shirou/gopsutil/process"
)

type NamedChannel struct {
	Name    string
	Channel any
}

// ChannelStats is a sample of a buffered channel's fill level.
type ChannelStats struct {
	Name     string
	Length   int
	Capacity int
}

// HealthWorker periodically logs the process footprint and how full the
// internal channels are. Reading len and cap of a channel never blocks.
type HealthWorker struct {
	log            *slog.Logger
	channels       []NamedChannel
	metricInterval time.Duration
}

func NewHealthWorker(log *slog.Logger, channels []NamedChannel, metricInterval time.Duration) *HealthWorker {
	return &HealthWorker{log: log, channels: channels, metricInterval: metricInterval}
}

func (w *HealthWorker) Run(ctx context.Context) error {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping health reports")
			return nil
		case <-ticker.C:
			rss, cpu, threads, err := selfStats(p)
			if err != nil {
				w.log.Warn("Failed to collect self stats", "error", err)
			} else {
				w.log.Info("Process health", "rss_bytes", rss, "cpu_percent", cpu, "threads", threads)
			}
			for _, stats := range w.Sample() {
				level := slog.LevelDebug
				if stats.Capacity > 0 && stats.Length*10 >= stats.Capacity*8 {
					level = slog.LevelWarn
				}
				w.log.Log(ctx, level, "Channel fill", "name", stats.Name, "length", stats.Length, "capacity", stats.Capacity)
			}
		}
	}
}

// Sample reads the fill level of every registered channel. Values that are not channels are skipped.
func (w *HealthWorker) Sample() []ChannelStats {
	stats := make([]ChannelStats, 0, len(w.channels))
	for _, nc := range w.channels {
		v := reflect.ValueOf(nc.Channel)
		if v.Kind() != reflect.Chan {
			w.log.Error("Provided object is not a channel", "name", nc.Name)
			continue
		}
		stats = append(stats, ChannelStats{Name: nc.Name, Length: v.Len(), Capacity: v.Cap()})
	}
	return stats
}

func selfStats(p *process.Process) (uint64, float64, int32, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, 0, err
	}
	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return 0, 0, 0, err
	}
	threads, err := p.NumThreads()
	if err != nil {
		return 0, 0, 0, err
	}
	return memInfo.RSS, cpuPercent, threads, nil
}
