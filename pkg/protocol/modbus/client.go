package modbus

import (
	"context"
	"encoding/hex"
	"log"
	"strings"
	"sync"
	"time"

	gomodbus "github.com/goburrow/modbus"
	"github.com/goburrow/serial"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
	modbusruntime "plcgateway/pkg/protocol/modbus/runtime"
	"plcgateway/pkg/runtime/constant"
	"plcgateway/pkg/utils/binutil"
)

// ClientConfig describes the serial line and the single slave behind it.
type ClientConfig struct {
	Address  string
	BaudRate int
	DataBits int
	Parity   constant.Parity
	StopBits constant.StopBits
	Framing  constant.Framing
	Slave    uint8
	Timeout  time.Duration
}

// Handler is a goburrow serial client handler that owns the port.
type Handler interface {
	gomodbus.ClientHandler
	Connect() error
	Close() error
}

type HandlerFunc func(config ClientConfig) Handler

type ClientOption func(*Client)

// WithHandlerFunc replaces the goburrow ASCII/RTU handler, mostly for tests.
func WithHandlerFunc(fn HandlerFunc) ClientOption {
	return func(c *Client) {
		c.newHandler = fn
	}
}

// Client is a modbus serial master talking to one slave. One transaction runs at a time,
// so a Client is safe for concurrent use.
type Client struct {
	config     ClientConfig
	newHandler HandlerFunc
	mux        sync.Mutex
	handler    Handler
	client     gomodbus.Client
}

func NewClient(config ClientConfig, opts ...ClientOption) *Client {
	c := &Client{
		config:     config,
		newHandler: newHandler,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func newHandler(config ClientConfig) Handler {
	if config.Framing == constant.RTUFraming {
		h := gomodbus.NewRTUClientHandler(config.Address)
		h.SlaveId = config.Slave
		configureSerial(&h.Config, config)
		// 串口常开, 由 Device 决定何时关闭
		h.IdleTimeout = 0
		h.Logger = handlerLogger()
		return h
	}
	h := gomodbus.NewASCIIClientHandler(config.Address)
	h.SlaveId = config.Slave
	configureSerial(&h.Config, config)
	h.IdleTimeout = 0
	h.Logger = handlerLogger()
	return h
}

func configureSerial(c *serial.Config, config ClientConfig) {
	c.BaudRate = config.BaudRate
	c.DataBits = config.DataBits
	c.Parity = modbusruntime.ParityToSerial[config.Parity]
	c.StopBits = modbusruntime.StopBitsToSerial[config.StopBits]
	c.Timeout = config.Timeout
}

// handlerLogger dumps every frame at -v=6.
func handlerLogger() *log.Logger {
	if klog.V(6).Enabled() {
		return klog.NewStandardLogger("INFO")
	}
	return nil
}

// Connect opens the serial port, it is a no-op when the port is already open.
func (c *Client) Connect() error {
	c.mux.Lock()
	defer c.mux.Unlock()
	if c.handler != nil {
		return nil
	}

	h := c.newHandler(c.config)
	if err := h.Connect(); err != nil {
		klog.V(2).InfoS("Failed to connect serial port", "address", c.config.Address, "error", err)
		return errors.Wrapf(err, "open serial port %s", c.config.Address)
	}
	c.handler = h
	c.client = gomodbus.NewClient(h)
	klog.V(4).InfoS("Opened serial port", "address", c.config.Address, "baudRate", c.config.BaudRate,
		"dataBits", c.config.DataBits, "framing", constant.FramingToString[c.config.Framing])
	return nil
}

// Close waits for the running transaction and closes the port.
func (c *Client) Close() error {
	c.mux.Lock()
	defer c.mux.Unlock()
	if c.handler == nil {
		return nil
	}
	h := c.handler
	c.handler = nil
	c.client = nil
	return h.Close()
}

func (c *Client) ReadCoils(ctx context.Context, address uint16, quantity uint16) ([]bool, error) {
	results, err := c.do(ctx, "ReadCoils", address, func(client gomodbus.Client) ([]byte, error) {
		return client.ReadCoils(address, quantity)
	})
	if err != nil {
		return nil, err
	}
	// 数组解压
	return binutil.ExpandBool(results, int(quantity)), nil
}

func (c *Client) ReadDiscreteInputs(ctx context.Context, address uint16, quantity uint16) ([]bool, error) {
	results, err := c.do(ctx, "ReadDiscreteInputs", address, func(client gomodbus.Client) ([]byte, error) {
		return client.ReadDiscreteInputs(address, quantity)
	})
	if err != nil {
		return nil, err
	}
	return binutil.ExpandBool(results, int(quantity)), nil
}

func (c *Client) ReadHoldingRegisters(ctx context.Context, address uint16, quantity uint16) ([]uint16, error) {
	results, err := c.do(ctx, "ReadHoldingRegisters", address, func(client gomodbus.Client) ([]byte, error) {
		return client.ReadHoldingRegisters(address, quantity)
	})
	if err != nil {
		return nil, err
	}
	return binutil.ParseUint16Slice(results), nil
}

func (c *Client) WriteSingleCoil(ctx context.Context, address uint16, on bool) error {
	value := modbusruntime.CoilOff
	if on {
		value = modbusruntime.CoilOn
	}
	_, err := c.do(ctx, "WriteSingleCoil", address, func(client gomodbus.Client) ([]byte, error) {
		return client.WriteSingleCoil(address, value)
	})
	return err
}

func (c *Client) WriteMultipleCoils(ctx context.Context, address uint16, values []bool) error {
	_, err := c.do(ctx, "WriteMultipleCoils", address, func(client gomodbus.Client) ([]byte, error) {
		return client.WriteMultipleCoils(address, uint16(len(values)), binutil.ShrinkBool(values))
	})
	return err
}

func (c *Client) WriteSingleRegister(ctx context.Context, address uint16, value uint16) error {
	_, err := c.do(ctx, "WriteSingleRegister", address, func(client gomodbus.Client) ([]byte, error) {
		return client.WriteSingleRegister(address, value)
	})
	return err
}

func (c *Client) do(ctx context.Context, op string, address uint16, fn func(client gomodbus.Client) ([]byte, error)) ([]byte, error) {
	c.mux.Lock()
	defer c.mux.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.client == nil {
		return nil, modbusruntime.ErrSerialPortClosed
	}

	results, err := fn(c.client)
	if err != nil {
		klog.V(2).InfoS("Modbus transaction failed", "op", op, "address", address, "error", err)
		return nil, classify(err)
	}
	klog.V(5).InfoS("Modbus transaction succeeded", "op", op, "address", address, "results", results)
	return results, nil
}

// classify maps goburrow errors onto the runtime errors, only ErrBadConn means the port itself failed.
func classify(err error) error {
	var exception *gomodbus.ModbusError
	var invalidByte hex.InvalidByteError
	switch {
	case errors.As(err, &exception):
		return err
	case errors.Is(err, serial.ErrTimeout):
		return errors.Wrap(modbusruntime.ErrResponseTimeout, err.Error())
	case strings.HasPrefix(err.Error(), "modbus: "), errors.As(err, &invalidByte), errors.Is(err, hex.ErrLength):
		return errors.Wrap(modbusruntime.ErrServerBadResp, err.Error())
	}
	return errors.Wrap(modbusruntime.ErrBadConn, err.Error())
}
