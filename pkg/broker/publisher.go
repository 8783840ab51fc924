package broker

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"k8s.io/klog/v2"
	"plcgateway/pkg/plc"
	"plcgateway/pkg/utils/uuidutil"
)

const (
	mqttTimeout = time.Second
	writesTopic = "writes"
	// quiesce 断开前等待未完成消息的毫秒数
	quiesce = 250
)

type Config struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
}

// Publisher sends every successful PLC write to <prefix>/writes.
type Publisher struct {
	client  mqtt.Client
	topic   string
	timeout time.Duration
}

func NewPublisher(c Config) (*Publisher, error) {
	clientID := c.ClientID
	if len(clientID) == 0 {
		clientID = "plcgateway-" + uuidutil.ShortUUID()
	}
	opts := mqtt.NewClientOptions().
		AddBroker(c.Broker).
		SetClientID(clientID).
		SetUsername(c.Username).
		SetPassword(c.Password).
		SetAutoReconnect(true).
		SetConnectTimeout(3 * mqttTimeout).
		SetConnectionLostHandler(func(client mqtt.Client, err error) {
			klog.V(1).InfoS("Lost MQTT connection", "err", err)
		})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(3 * mqttTimeout) {
		return nil, fmt.Errorf("connect to mqtt broker %s: timeout", c.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to mqtt broker %s: %w", c.Broker, err)
	}
	klog.V(2).InfoS("Connected to MQTT broker", "broker", c.Broker, "clientId", clientID)
	return newPublisher(client, c.TopicPrefix), nil
}

func newPublisher(client mqtt.Client, prefix string) *Publisher {
	topic := writesTopic
	if len(prefix) > 0 {
		topic = prefix + "/" + writesTopic
	}
	return &Publisher{
		client:  client,
		topic:   topic,
		timeout: mqttTimeout,
	}
}

func (p *Publisher) Topic() string {
	return p.topic
}

// Notify publishes event with QoS 1, failures are only logged.
func (p *Publisher) Notify(event *plc.WriteEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		klog.V(1).InfoS("Failed to marshal write event", "address", event.Address, "err", err)
		return
	}
	token := p.client.Publish(p.topic, 1, false, payload)
	if token.WaitTimeout(p.timeout) && token.Error() == nil {
		klog.V(5).InfoS("Succeed to publish MQTT", "topic", p.topic, "data", string(payload))
	} else {
		klog.V(1).InfoS("Failed to publish MQTT", "topic", p.topic, "err", token.Error())
	}
}

func (p *Publisher) Close() {
	p.client.Disconnect(quiesce)
}
