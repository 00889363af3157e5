package platform

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v4/host"
)

// RealDetector implements Detector using actual platform detection.
type RealDetector struct{}

// NewDetector creates a new platform detector.
func NewDetector() Detector {
	return &RealDetector{}
}

// Detect reports the host OS and architecture. The kernel architecture from
// gopsutil wins over runtime.GOARCH, so a 32-bit build running on a 64-bit
// Windows still prefers x64 packages. Detection failures other than context
// cancellation fall back to the runtime values.
func (d *RealDetector) Detect(ctx context.Context) (*Info, error) {
	info := &Info{
		OS:      runtime.GOOS,
		ArchRaw: runtime.GOARCH,
	}

	hostInfo, err := host.InfoWithContext(ctx)
	if err != nil && ctx.Err() != nil {
		return nil, fmt.Errorf("platform detection cancelled: %w", ctx.Err())
	}
	if err == nil && hostInfo != nil {
		info.KernelArch = strings.TrimSpace(hostInfo.KernelArch)
		info.Platform = strings.TrimSpace(hostInfo.Platform)
		info.Version = strings.TrimSpace(hostInfo.PlatformVersion)
	}

	arch, err := normalizeArch(info.KernelArch)
	if err != nil {
		arch, err = normalizeArch(runtime.GOARCH)
		if err != nil {
			return nil, fmt.Errorf("platform detection failed: %w", err)
		}
	}
	info.Arch = arch

	return info, nil
}
