package metrics

import (
	"context"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

// SystemMetrics holds one system metrics snapshot
type SystemMetrics struct {
	CPUPercent        float64 // System-wide CPU usage (0-100%)
	ProcessCPUPercent float64 // This process, can exceed 100% on multi-core
	ProcessRSSBytes   uint64
	MemoryUsedGB      float64
	MemoryTotalGB     float64
	MemoryPercent     float64
	DiskReadMBps      float64
	DiskWriteMBps     float64
	Timestamp         time.Time
}

// gauges mirror SystemMetrics for Prometheus
type gauges struct {
	sysCPU    prometheus.Gauge
	procCPU   prometheus.Gauge
	procRSS   prometheus.Gauge
	memPct    prometheus.Gauge
	diskRead  prometheus.Gauge
	diskWrite prometheus.Gauge
}

// Collector periodically samples system metrics, logs them and optionally
// publishes them as Prometheus gauges
type Collector struct {
	interval      time.Duration
	logger        *zap.Logger
	proc          *process.Process
	gauges        *gauges
	lastDiskStats map[string]disk.IOCountersStat
	lastDiskTime  time.Time
	mu            sync.RWMutex
	lastMetrics   *SystemMetrics
}

// NewCollector creates a collector. Intervals below one second fall back to 30s.
func NewCollector(interval time.Duration, logger *zap.Logger) *Collector {
	if interval < time.Second {
		interval = 30 * time.Second
	}

	proc, _ := process.NewProcess(int32(os.Getpid()))

	return &Collector{
		interval: interval,
		logger:   logger,
		proc:     proc,
	}
}

// Register publishes the collector's samples as mapster_system_* gauges
func (c *Collector) Register(reg prometheus.Registerer) error {
	newGauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mapster",
			Subsystem: "system",
			Name:      name,
			Help:      help,
		})
	}
	g := &gauges{
		sysCPU:    newGauge("cpu_percent", "System-wide CPU usage in percent."),
		procCPU:   newGauge("process_cpu_percent", "CPU usage of this process in percent."),
		procRSS:   newGauge("process_rss_bytes", "Resident memory of this process."),
		memPct:    newGauge("memory_percent", "System memory usage in percent."),
		diskRead:  newGauge("disk_read_mbps", "Disk read throughput in MB/s."),
		diskWrite: newGauge("disk_write_mbps", "Disk write throughput in MB/s."),
	}
	for _, col := range []prometheus.Collector{g.sysCPU, g.procCPU, g.procRSS, g.memPct, g.diskRead, g.diskWrite} {
		if err := reg.Register(col); err != nil {
			return err
		}
	}
	c.gauges = g
	return nil
}

// Start samples until the context is cancelled
func (c *Collector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	// First sample also sets the disk baseline
	c.collect()

	for {
		select {
		case <-ctx.Done():
			c.logger.Debug("Metrics collection stopped")
			return
		case <-ticker.C:
			c.collect()
		}
	}
}

// GetMetrics returns the last sample, nil before the first one
func (c *Collector) GetMetrics() *SystemMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastMetrics
}

func (c *Collector) collect() {
	m := c.sample()

	c.mu.Lock()
	c.lastMetrics = m
	c.mu.Unlock()

	if g := c.gauges; g != nil {
		g.sysCPU.Set(m.CPUPercent)
		g.procCPU.Set(m.ProcessCPUPercent)
		g.procRSS.Set(float64(m.ProcessRSSBytes))
		g.memPct.Set(m.MemoryPercent)
		g.diskRead.Set(m.DiskReadMBps)
		g.diskWrite.Set(m.DiskWriteMBps)
	}

	c.logger.Info("System metrics",
		zap.Float64("sys_cpu", m.CPUPercent),
		zap.Float64("proc_cpu", m.ProcessCPUPercent),
		zap.String("proc_rss", formatFloat(float64(m.ProcessRSSBytes)/(1024*1024))+" MB"),
		zap.Float64("mem_pct", m.MemoryPercent),
		zap.String("mem_used", formatFloat(m.MemoryUsedGB)+" GB"),
		zap.String("disk_r", formatFloat(m.DiskReadMBps)+" MB/s"),
		zap.String("disk_w", formatFloat(m.DiskWriteMBps)+" MB/s"),
	)
}

func (c *Collector) sample() *SystemMetrics {
	m := &SystemMetrics{Timestamp: time.Now()}

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		m.CPUPercent = pct[0]
	}

	if c.proc != nil {
		if pct, err := c.proc.Percent(0); err == nil {
			m.ProcessCPUPercent = pct
		}
		if info, err := c.proc.MemoryInfo(); err == nil {
			m.ProcessRSSBytes = info.RSS
		}
	}

	if vmem, err := mem.VirtualMemory(); err == nil {
		m.MemoryPercent = vmem.UsedPercent
		m.MemoryUsedGB = float64(vmem.Used) / (1024 * 1024 * 1024)
		m.MemoryTotalGB = float64(vmem.Total) / (1024 * 1024 * 1024)
	}

	m.DiskReadMBps, m.DiskWriteMBps = c.diskRates()
	return m
}

// diskRates returns read and write throughput since the previous call
func (c *Collector) diskRates() (readMBps, writeMBps float64) {
	counters, err := disk.IOCounters()
	if err != nil {
		return 0, 0
	}

	now := time.Now()
	last, lastTime := c.lastDiskStats, c.lastDiskTime
	c.lastDiskStats, c.lastDiskTime = counters, now

	if last == nil {
		return 0, 0
	}
	elapsed := now.Sub(lastTime).Seconds()
	if elapsed < 0.1 {
		return 0, 0
	}

	var readDelta, writeDelta uint64
	for name, counter := range counters {
		prev, ok := last[name]
		if !ok {
			continue
		}
		// Counters may wrap
		if counter.ReadBytes >= prev.ReadBytes {
			readDelta += counter.ReadBytes - prev.ReadBytes
		}
		if counter.WriteBytes >= prev.WriteBytes {
			writeDelta += counter.WriteBytes - prev.WriteBytes
		}
	}

	readMBps = float64(readDelta) / elapsed / (1024 * 1024)
	writeMBps = float64(writeDelta) / elapsed / (1024 * 1024)
	return readMBps, writeMBps
}

// formatFloat formats with one decimal place
func formatFloat(f float64) string {
	if f < 0.05 {
		return "0.0"
	}
	return strconv.FormatFloat(f, 'f', 1, 64)
}
