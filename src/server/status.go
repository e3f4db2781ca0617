package server

import (
	"context"
	"log/slog"
	"os"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/process"
)

func lookupHost(logger *slog.Logger) *HostInfo {
	info, err := host.Info()
	if err != nil {
		logger.Debug("host info unavailable", "error", err)
		return nil
	}
	return &HostInfo{
		Hostname:        info.Hostname,
		OS:              info.OS,
		Platform:        info.Platform,
		PlatformVersion: info.PlatformVersion,
		KernelVersion:   info.KernelVersion,
	}
}

func processInfo(ctx context.Context) *ProcessInfo {
	pid := int32(os.Getpid())
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return &ProcessInfo{PID: pid}
	}
	info := &ProcessInfo{PID: pid}
	if mem, err := p.MemoryInfoWithContext(ctx); err == nil && mem != nil {
		info.RSSBytes = mem.RSS
	}
	return info
}
