package config

import (
	"plcgateway/pkg/broker"
	"plcgateway/pkg/gateway"
	"plcgateway/pkg/plc"
)

type Config struct {
	Device     *plc.Device
	GatewayMgr *gateway.Manager
	// Publisher is nil when no MQTT broker is configured
	Publisher *broker.Publisher
	StaticDir string
	Dashboard string
	CertFile  string
	KeyFile   string
}
