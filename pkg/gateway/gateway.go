package gateway

type ResponseModel struct {
	Host        interface{} `json:"host,omitempty"`
	Cpus        interface{} `json:"cpus,omitempty"`
	Mem         interface{} `json:"mem,omitempty"`
	Disks       interface{} `json:"disk,omitempty"`
	// SerialPorts 本机可用的串口, 用于排查 PLC 连接
	SerialPorts interface{} `json:"serialPorts,omitempty"`
}

type HostInfo struct {
	Hostname        string `json:"hostname"`
	OS              string `json:"os"`
	Platform        string `json:"platform"`
	PlatformVersion string `json:"platformVersion"`
	KernelVersion   string `json:"kernelVersion"`
	Uptime          uint64 `json:"uptime"`
}

type CpuUsageInfo struct {
	Cores       int    `json:"cores"`
	UsedPercent string `json:"usedPercent"`
}

type MemUsageInfo struct {
	Total       string `json:"total"`
	Used        string `json:"used"`
	UsedPercent string `json:"usedPercent"`
}

type DiskUsageInfo struct {
	Path        string `json:"path"`
	Total       string `json:"total"`
	Used        string `json:"used"`
	UsedPercent string `json:"usedPercent"`
}

const (
	defaultDiskPath = "/"
	cpuSampleWindow = 200 // ms
)
