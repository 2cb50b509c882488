// Package platform reports where the relay runs, for bug reports and the
// info command.
package platform

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/host"
	"github.com/shirou/gopsutil/process"
)

// Report is a snapshot of build and host details. Unknown values are empty.
type Report struct {
	App       string `json:"app"`
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
	Hostname  string `json:"hostname,omitempty"`
	Platform  string `json:"platform,omitempty"`
	Kernel    string `json:"kernel,omitempty"`
	CPU       string `json:"cpu,omitempty"`
	CPUs      int    `json:"cpus"`
	RSSBytes  uint64 `json:"rss_bytes,omitempty"`
}

// Info collects a Report. Host lookups that fail leave their fields empty;
// the error is returned only when nothing could be read from the host.
func Info(ctx context.Context, app, version string) (Report, error) {
	r := Report{
		App:       app,
		Version:   version,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		CPUs:      runtime.NumCPU(),
	}

	hi, herr := host.InfoWithContext(ctx)
	if herr == nil && hi != nil {
		r.Hostname = hi.Hostname
		r.Platform = strings.TrimSpace(hi.Platform + " " + hi.PlatformVersion)
		r.Kernel = strings.TrimSpace(hi.KernelVersion + " " + hi.KernelArch)
	}
	if cs, err := cpu.InfoWithContext(ctx); err == nil && len(cs) > 0 {
		r.CPU = strings.TrimSpace(cs[0].ModelName)
	}
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if mi, err := p.MemoryInfo(); err == nil && mi != nil {
			r.RSSBytes = mi.RSS
		}
	}
	if herr != nil {
		return r, fmt.Errorf("host info: %w", herr)
	}
	return r, nil
}

// String renders the report as lines suitable for pasting into an issue.
func (r Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Running %s %s\n", orUnknown(r.App), orUnknown(r.Version))
	fmt.Fprintf(&b, "Go %s\n", r.GoVersion)
	fmt.Fprintf(&b, "OS %s/%s\n", r.OS, r.Arch)
	if r.Platform != "" {
		fmt.Fprintf(&b, "Platform %s\n", r.Platform)
	}
	if r.Kernel != "" {
		fmt.Fprintf(&b, "Kernel %s\n", r.Kernel)
	}
	fmt.Fprintf(&b, "CPU %s (%d cores)\n", orUnknown(r.CPU), r.CPUs)
	if r.RSSBytes > 0 {
		fmt.Fprintf(&b, "Memory %.1f MiB\n", float64(r.RSSBytes)/(1<<20))
	}
	return b.String()
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return s
}
