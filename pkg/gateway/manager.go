package gateway

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	psnet "github.com/shirou/gopsutil/v3/net"
	"go.bug.st/serial"
	"k8s.io/klog/v2"
)

type Option func(*Manager)

func WithDiskPath(path string) Option {
	return func(m *Manager) {
		m.diskPath = path
	}
}

// Manager reports the state of the machine the gateway runs on.
type Manager struct {
	diskPath string
}

func NewGatewayManager(opts ...Option) *Manager {
	m := &Manager{
		diskPath: defaultDiskPath,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) getGatewayHost() (*HostInfo, error) {
	info, err := host.Info()
	if err != nil {
		klog.V(2).InfoS("Failed to get host information", "err", err)
		return nil, err
	}
	return &HostInfo{
		Hostname:        info.Hostname,
		OS:              info.OS,
		Platform:        info.Platform,
		PlatformVersion: info.PlatformVersion,
		KernelVersion:   info.KernelVersion,
		Uptime:          info.Uptime,
	}, nil
}

func (m *Manager) getGatewayCpu() (*CpuUsageInfo, error) {
	cores, err := cpu.Counts(true)
	if err != nil {
		klog.V(2).InfoS("Failed to get cpu count", "err", err)
		return nil, err
	}
	percent, err := cpu.Percent(cpuSampleWindow*time.Millisecond, false)
	if err != nil || len(percent) == 0 {
		klog.V(2).InfoS("Failed to get cpu usage", "err", err)
		return nil, fmt.Errorf("cpu usage unavailable: %v", err)
	}
	return &CpuUsageInfo{
		Cores:       cores,
		UsedPercent: formatPercent(percent[0]),
	}, nil
}

func (m *Manager) getGatewayMem() (*MemUsageInfo, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		klog.V(2).InfoS("Failed to get memory usage", "err", err)
		return nil, err
	}
	return &MemUsageInfo{
		Total:       formatBytes(vm.Total),
		Used:        formatBytes(vm.Used),
		UsedPercent: formatPercent(vm.UsedPercent),
	}, nil
}

func (m *Manager) getGatewayDisk() (*DiskUsageInfo, error) {
	usage, err := disk.Usage(m.diskPath)
	if err != nil {
		klog.V(2).InfoS("Failed to get disk usage", "path", m.diskPath, "err", err)
		return nil, err
	}
	return &DiskUsageInfo{
		Path:        usage.Path,
		Total:       formatBytes(usage.Total),
		Used:        formatBytes(usage.Used),
		UsedPercent: formatPercent(usage.UsedPercent),
	}, nil
}

// NetworkAddresses lists the IPv4 addresses of the up, non loopback interfaces.
func NetworkAddresses() ([]string, error) {
	interfaces, err := psnet.Interfaces()
	if err != nil {
		return nil, err
	}
	addresses := make([]string, 0)
	for _, i := range interfaces {
		if !hasFlag(i.Flags, "up") || hasFlag(i.Flags, "loopback") {
			continue
		}
		for _, addr := range i.Addrs {
			ip, _, err := net.ParseCIDR(addr.Addr)
			if err != nil {
				ip = net.ParseIP(addr.Addr)
			}
			if ip == nil || ip.To4() == nil {
				continue
			}
			addresses = append(addresses, ip.String())
		}
	}
	return addresses, nil
}

var listSerialPorts = serial.GetPortsList

// SerialPorts lists the serial ports the OS reports, never nil.
func SerialPorts() ([]string, error) {
	ports, err := listSerialPorts()
	if err != nil {
		return nil, err
	}
	if ports == nil {
		ports = []string{}
	}
	return ports, nil
}

func hasFlag(flags []string, flag string) bool {
	for _, f := range flags {
		if strings.EqualFold(f, flag) {
			return true
		}
	}
	return false
}

func formatBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%dB", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f%cB", float64(b)/float64(div), "KMGTPE"[exp])
}

func formatPercent(p float64) string {
	return fmt.Sprintf("%.2f%%", p)
}
