package health

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// clockTicksPerSecond is the kernel's USER_HZ, fixed at 100 on Linux.
const clockTicksPerSecond = 100

// ResourceSampler samples the process's CPU and memory usage from /proc.
// CPU usage is computed as the tick delta between consecutive samples, so
// the first sample always reports 0% CPU.
type ResourceSampler struct {
	lastTicks   uint64
	lastSampled time.Time
	memTotal    uint64
}

// NewResourceSampler creates a resource sampler.
func NewResourceSampler() *ResourceSampler {
	return &ResourceSampler{}
}

// Sample reads current CPU and memory usage.
func (rs *ResourceSampler) Sample() (ResourceSample, error) {
	now := time.Now()
	sample := ResourceSample{Timestamp: now}

	ticks, err := processCPUTicks()
	if err != nil {
		return sample, fmt.Errorf("reading process cpu: %w", err)
	}
	if !rs.lastSampled.IsZero() {
		elapsed := now.Sub(rs.lastSampled).Seconds()
		if elapsed > 0 && ticks >= rs.lastTicks {
			used := float64(ticks-rs.lastTicks) / clockTicksPerSecond
			sample.CPUPct = used / elapsed / float64(runtime.NumCPU()) * 100
		}
	}
	rs.lastTicks = ticks
	rs.lastSampled = now

	memPct, err := rs.memoryPct()
	if err != nil {
		return sample, fmt.Errorf("reading process memory: %w", err)
	}
	sample.MemPct = memPct

	return sample, nil
}

// processCPUTicks returns utime+stime from /proc/self/stat.
func processCPUTicks() (uint64, error) {
	data, err := os.ReadFile("/proc/self/stat")
	if err != nil {
		return 0, err
	}

	// The comm field is parenthesized and may contain spaces; fields are
	// counted from after the closing paren.
	line := string(data)
	idx := strings.LastIndexByte(line, ')')
	if idx < 0 {
		return 0, fmt.Errorf("malformed /proc/self/stat")
	}
	fields := strings.Fields(line[idx+1:])
	// After comm: state is field 0, utime is field 11, stime field 12.
	if len(fields) < 13 {
		return 0, fmt.Errorf("short /proc/self/stat: %d fields", len(fields))
	}
	utime, err := strconv.ParseUint(fields[11], 10, 64)
	if err != nil {
		return 0, err
	}
	stime, err := strconv.ParseUint(fields[12], 10, 64)
	if err != nil {
		return 0, err
	}
	return utime + stime, nil
}

func (rs *ResourceSampler) memoryPct() (float64, error) {
	if rs.memTotal == 0 {
		total, err := systemMemTotal()
		if err != nil {
			return 0, err
		}
		rs.memTotal = total
	}

	rss, err := processRSS()
	if err != nil {
		return 0, err
	}
	if rs.memTotal == 0 {
		return 0, nil
	}
	return float64(rss) / float64(rs.memTotal) * 100, nil
}

// processRSS returns the resident set size in bytes from /proc/self/statm.
func processRSS() (uint64, error) {
	data, err := os.ReadFile("/proc/self/statm")
	if err != nil {
		return 0, err
	}
	fields := strings.Fields(string(data))
	if len(fields) < 2 {
		return 0, fmt.Errorf("short /proc/self/statm")
	}
	pages, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return 0, err
	}
	return pages * uint64(os.Getpagesize()), nil
}

// systemMemTotal returns MemTotal from /proc/meminfo in bytes.
func systemMemTotal() (uint64, error) {
	data, err := os.ReadFile("/proc/meminfo")
	if err != nil {
		return 0, err
	}
	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "MemTotal:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			break
		}
		kb, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return 0, err
		}
		return kb * 1024, nil
	}
	return 0, fmt.Errorf("MemTotal not found in /proc/meminfo")
}
