package options

import (
	"time"

	"github.com/spf13/pflag"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/klog/v2"
	"plcgateway/cmd/gateway/config"
	"plcgateway/pkg/broker"
	"plcgateway/pkg/gateway"
	baseoptions "plcgateway/pkg/generic/options"
	"plcgateway/pkg/plc"
	"plcgateway/pkg/protocol/modbus"
	"plcgateway/pkg/runtime/constant"
)

type Options struct {
	Port         string          `json:"port"`
	Wait         metav1.Duration `json:"graceful-timeout"`
	StaticDir    string          `json:"static-dir"`
	Dashboard    string          `json:"dashboard"`
	AllowOrigins []string        `json:"allow-origins"`
	CertFile     string          `json:"cert-file"`
	KeyFile      string          `json:"key-file"`
	DiskPath     string          `json:"disk-path"`
	Serial       SerialOptions   `json:"serial"`
	Device       DeviceOptions   `json:"device"`
	MQTT         MQTTOptions     `json:"mqtt"`
	baseoptions.BaseOptions
}

// SerialOptions 串口参数, 默认值对应台达 DVP 出厂设置 9600 7E1 ASCII
type SerialOptions struct {
	Address  string          `json:"address"`
	BaudRate int             `json:"baud-rate"`
	DataBits int             `json:"data-bits"`
	Parity   string          `json:"parity"`
	StopBits string          `json:"stop-bits"`
	Framing  string          `json:"framing"`
	Slave    uint8           `json:"slave"`
	Timeout  metav1.Duration `json:"timeout"`
}

type DeviceOptions struct {
	SettleInterval  metav1.Duration `json:"settle-interval"`
	StatusExtraArea string          `json:"status-extra-area"`
}

type MQTTOptions struct {
	Broker      string `json:"broker"`
	ClientID    string `json:"client-id"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	TopicPrefix string `json:"topic-prefix"`
}

const (
	_defaultPort      = "5000"
	_defaultWait      = 15 * time.Second
	_defaultStaticDir = "static"
	_defaultDashboard = "plc_dashboard.html"
	_defaultDiskPath  = "/"

	_defaultSerialAddress = "/dev/ttyACM0"
	_defaultBaudRate      = 9600
	_defaultDataBits      = 7
	_defaultSlave         = 1
	_defaultTimeout       = 3 * time.Second

	_defaultTopicPrefix = "plcgateway"
)

func NewDefaultOptions() *Options {
	return &Options{
		Port:         _defaultPort,
		Wait:         metav1.Duration{Duration: _defaultWait},
		StaticDir:    _defaultStaticDir,
		Dashboard:    _defaultDashboard,
		AllowOrigins: []string{},
		DiskPath:     _defaultDiskPath,
		Serial: SerialOptions{
			Address:  _defaultSerialAddress,
			BaudRate: _defaultBaudRate,
			DataBits: _defaultDataBits,
			Parity:   constant.ParityToString[constant.EvenParity],
			StopBits: constant.StopBitsToString[constant.OneStopBit],
			Framing:  constant.FramingToString[constant.ASCIIFraming],
			Slave:    _defaultSlave,
			Timeout:  metav1.Duration{Duration: _defaultTimeout},
		},
		Device: DeviceOptions{
			SettleInterval:  metav1.Duration{Duration: plc.DefaultSettleInterval},
			StatusExtraArea: plc.AreaM.String(),
		},
		MQTT: MQTTOptions{
			TopicPrefix: _defaultTopicPrefix,
		},
		BaseOptions: baseoptions.NewDefaultBaseOptions(),
	}
}

func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&o.Port, "port", "P", o.Port, "Port exposed")
	fs.DurationVar(&o.Wait.Duration, "graceful-timeout", o.Wait.Duration, "The duration for which the server gracefully wait for existing connections to finish - e.g. 15s or 1m")
	fs.StringVar(&o.StaticDir, "static-dir", o.StaticDir, "Directory the dashboard and other static files are served from, empty disables static files")
	fs.StringVar(&o.Dashboard, "dashboard", o.Dashboard, "Dashboard file inside the static directory served at /")
	fs.StringSliceVar(&o.AllowOrigins, "allow-origins", o.AllowOrigins, "Origins allowed by CORS, empty allows any origin")
	fs.StringVar(&o.CertFile, "cert-file", o.CertFile, "TLS certificate file, HTTPS is served when both cert and key are set")
	fs.StringVar(&o.KeyFile, "key-file", o.KeyFile, "TLS private key file")
	fs.StringVar(&o.DiskPath, "disk-path", o.DiskPath, "Mount point reported by /api/system/disk")

	fs.StringVar(&o.Serial.Address, "serial-port", o.Serial.Address, "Serial port the PLC is connected to")
	fs.IntVar(&o.Serial.BaudRate, "baud-rate", o.Serial.BaudRate, "Serial baud rate")
	fs.IntVar(&o.Serial.DataBits, "data-bits", o.Serial.DataBits, "Serial data bits")
	fs.StringVar(&o.Serial.Parity, "parity", o.Serial.Parity, "Serial parity, one of noParity, oddParity, evenParity")
	fs.StringVar(&o.Serial.StopBits, "stop-bits", o.Serial.StopBits, "Serial stop bits, one of 1, 2")
	fs.StringVar(&o.Serial.Framing, "framing", o.Serial.Framing, "Modbus serial framing, ascii or rtu")
	fs.Uint8Var(&o.Serial.Slave, "slave", o.Serial.Slave, "Modbus slave id of the PLC")
	fs.DurationVar(&o.Serial.Timeout.Duration, "timeout", o.Serial.Timeout.Duration, "Timeout of one modbus transaction")

	fs.DurationVar(&o.Device.SettleInterval.Duration, "settle-interval", o.Device.SettleInterval.Duration, "Wait between an M coil write and its verifying read")
	fs.StringVar(&o.Device.StatusExtraArea, "status-extra-area", o.Device.StatusExtraArea, "Area of the 100-103 block in the status snapshot, M or Y")

	fs.StringVar(&o.MQTT.Broker, "mqtt-broker", o.MQTT.Broker, "MQTT broker write events are published to, e.g. tcp://127.0.0.1:1883, empty disables publishing")
	fs.StringVar(&o.MQTT.ClientID, "mqtt-client-id", o.MQTT.ClientID, "MQTT client id, generated when empty")
	fs.StringVar(&o.MQTT.Username, "mqtt-username", o.MQTT.Username, "MQTT username")
	fs.StringVar(&o.MQTT.Password, "mqtt-password", o.MQTT.Password, "MQTT password")
	fs.StringVar(&o.MQTT.TopicPrefix, "mqtt-topic-prefix", o.MQTT.TopicPrefix, "Prefix of the MQTT topic, events go to <prefix>/writes")
}

// ClientConfig converts the validated serial options.
func (o *Options) ClientConfig() modbus.ClientConfig {
	return modbus.ClientConfig{
		Address:  o.Serial.Address,
		BaudRate: o.Serial.BaudRate,
		DataBits: o.Serial.DataBits,
		Parity:   constant.StringToParity[o.Serial.Parity],
		StopBits: constant.StringToStopBits[o.Serial.StopBits],
		Framing:  constant.StringToFraming[o.Serial.Framing],
		Slave:    o.Serial.Slave,
		Timeout:  o.Serial.Timeout.Duration,
	}
}

func (o *Options) Config(stopCh <-chan struct{}) (*config.Config, error) {
	c := &config.Config{
		StaticDir: o.StaticDir,
		Dashboard: o.Dashboard,
		CertFile:  o.CertFile,
		KeyFile:   o.KeyFile,
	}

	deviceOpts := []plc.Option{
		plc.WithSettleInterval(o.Device.SettleInterval.Duration),
		plc.WithStatusExtraBlock(plc.StringToArea[o.Device.StatusExtraArea]),
	}
	if len(o.MQTT.Broker) > 0 {
		publisher, err := broker.NewPublisher(broker.Config{
			Broker:      o.MQTT.Broker,
			ClientID:    o.MQTT.ClientID,
			Username:    o.MQTT.Username,
			Password:    o.MQTT.Password,
			TopicPrefix: o.MQTT.TopicPrefix,
		})
		if err != nil {
			return nil, err
		}
		c.Publisher = publisher
		go func() {
			<-stopCh
			publisher.Close()
		}()
		deviceOpts = append(deviceOpts, plc.WithNotifier(publisher))
		klog.V(1).InfoS("Publishing write events", "broker", o.MQTT.Broker, "topic", publisher.Topic())
	}

	c.Device = plc.NewDevice(modbus.NewClient(o.ClientConfig()), deviceOpts...)
	c.GatewayMgr = gateway.NewGatewayManager(gateway.WithDiskPath(o.DiskPath))

	return c, nil
}
