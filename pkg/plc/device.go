package plc

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/atomic"
	"k8s.io/klog/v2"
	modbusruntime "plcgateway/pkg/protocol/modbus/runtime"
)

const (
	DefaultSettleInterval = 50 * time.Millisecond

	maxReadBits      = modbusruntime.MaxReadBits
	maxReadRegisters = modbusruntime.MaxReadRegisters
)

// Transport is the modbus master a Device talks through, *modbus.Client in production.
type Transport interface {
	Connect() error
	Close() error
	ReadCoils(ctx context.Context, address uint16, quantity uint16) ([]bool, error)
	ReadDiscreteInputs(ctx context.Context, address uint16, quantity uint16) ([]bool, error)
	ReadHoldingRegisters(ctx context.Context, address uint16, quantity uint16) ([]uint16, error)
	WriteSingleCoil(ctx context.Context, address uint16, on bool) error
	WriteMultipleCoils(ctx context.Context, address uint16, values []bool) error
	WriteSingleRegister(ctx context.Context, address uint16, value uint16) error
}

// WriteEvent describes one successful write.
type WriteEvent struct {
	Timestamp time.Time   `json:"timestamp"`
	Address   string      `json:"address"`
	Value     interface{} `json:"value"`
	Fallback  bool        `json:"fallback"`
}

// Notifier is told about every successful write, it must not block for long.
type Notifier interface {
	Notify(event *WriteEvent)
}

type Option func(*Device)

func WithSettleInterval(interval time.Duration) Option {
	return func(d *Device) {
		d.settleInterval = interval
	}
}

func WithNotifier(notifier Notifier) Option {
	return func(d *Device) {
		d.notifier = notifier
	}
}

// WithStatusExtraBlock selects the region of the four cell block (offsets 100-103) added to a status snapshot.
func WithStatusExtraBlock(area Area) Option {
	return func(d *Device) {
		d.extraArea = area
	}
}

// Device owns the connection to one Delta PLC and maps logical offsets onto modbus transactions.
type Device struct {
	transport      Transport
	connected      atomic.Bool
	mu             sync.Mutex
	settleInterval time.Duration
	notifier       Notifier
	extraArea      Area
	// generation 每次打开或关闭串口加一, 由 mu 保护
	generation     uint64
}

func NewDevice(transport Transport, opts ...Option) *Device {
	d := &Device{
		transport:      transport,
		settleInterval: DefaultSettleInterval,
		extraArea:      AreaM,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Device) Connected() bool {
	return d.connected.Load()
}

// Connect (re)opens the serial port.
func (d *Device) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connectLocked()
}

// EnsureConnected makes one connect attempt when the device is not connected.
func (d *Device) EnsureConnected() error {
	_, err := d.session()
	return err
}

// session returns the generation of the open port, connecting first if needed.
func (d *Device) session() (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected.Load() {
		if err := d.connectLocked(); err != nil {
			return 0, err
		}
	}
	return d.generation, nil
}

func (d *Device) connectLocked() error {
	// 串口可能在上一次故障后仍然打开
	_ = d.transport.Close()
	d.generation++
	if err := d.transport.Connect(); err != nil {
		d.connected.Store(false)
		klog.V(1).InfoS("Failed to connect PLC", "error", err)
		return &CommunicationError{Op: "connect", Err: err}
	}
	d.connected.Store(true)
	klog.V(1).InfoS("Connected to PLC")
	return nil
}

func (d *Device) Disconnect() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connected.Store(false)
	d.generation++
	if err := d.transport.Close(); err != nil {
		klog.V(2).InfoS("Failed to close serial port", "error", err)
		return err
	}
	klog.V(1).InfoS("Disconnected from PLC")
	return nil
}

func (d *Device) Reconnect() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connected.Store(false)
	klog.V(2).InfoS("Reconnecting PLC")
	return d.connectLocked()
}

func (d *Device) ReadRegisters(ctx context.Context, offset uint16, count uint16) ([]uint16, error) {
	address, gen, err := d.prepare(AreaD, offset, count, maxReadRegisters)
	if err != nil {
		return nil, err
	}
	values, err := d.transport.ReadHoldingRegisters(ctx, address, count)
	if err != nil {
		return nil, d.fail(gen, "read", AreaD.RangeLabel(offset, count), err)
	}
	if len(values) != int(count) {
		return nil, d.fail(gen, "read", AreaD.RangeLabel(offset, count), ErrShortResponse)
	}
	return values, nil
}

func (d *Device) ReadFlags(ctx context.Context, offset uint16, count uint16) ([]bool, error) {
	return d.readBits(ctx, AreaM, offset, count, d.transport.ReadCoils)
}

func (d *Device) ReadInputs(ctx context.Context, offset uint16, count uint16) ([]bool, error) {
	return d.readBits(ctx, AreaX, offset, count, d.transport.ReadDiscreteInputs)
}

func (d *Device) ReadOutputs(ctx context.Context, offset uint16, count uint16) ([]bool, error) {
	return d.readBits(ctx, AreaY, offset, count, d.transport.ReadCoils)
}

func (d *Device) Read(ctx context.Context, area Area, offset uint16, count uint16) ([]bool, error) {
	switch area {
	case AreaM:
		return d.ReadFlags(ctx, offset, count)
	case AreaX:
		return d.ReadInputs(ctx, offset, count)
	case AreaY:
		return d.ReadOutputs(ctx, offset, count)
	}
	return nil, ErrUnsupportedArea
}

type readBitsFunc func(ctx context.Context, address uint16, quantity uint16) ([]bool, error)

func (d *Device) readBits(ctx context.Context, area Area, offset uint16, count uint16, read readBitsFunc) ([]bool, error) {
	address, gen, err := d.prepare(area, offset, count, maxReadBits)
	if err != nil {
		return nil, err
	}
	values, err := read(ctx, address, count)
	if err != nil {
		return nil, d.fail(gen, "read", area.RangeLabel(offset, count), err)
	}
	if len(values) < int(count) {
		return nil, d.fail(gen, "read", area.RangeLabel(offset, count), ErrShortResponse)
	}
	return values[:count], nil
}

// WriteRegister writes one holding register without reading it back.
func (d *Device) WriteRegister(ctx context.Context, offset uint16, value uint16) error {
	address, gen, err := d.prepare(AreaD, offset, 1, 1)
	if err != nil {
		return err
	}
	label := AreaD.Label(offset)
	if err := d.transport.WriteSingleRegister(ctx, address, value); err != nil {
		return d.fail(gen, "write", label, err)
	}
	klog.V(2).InfoS("Wrote register", "address", label, "value", value)
	d.notify(label, value, false)
	return nil
}

// WriteOutput writes one Y coil with function code 05, no verification.
func (d *Device) WriteOutput(ctx context.Context, offset uint16, state bool) error {
	address, gen, err := d.prepare(AreaY, offset, 1, 1)
	if err != nil {
		return err
	}
	label := AreaY.Label(offset)
	if err := d.transport.WriteSingleCoil(ctx, address, state); err != nil {
		return d.fail(gen, "write", label, err)
	}
	klog.V(2).InfoS("Wrote output", "address", label, "state", state)
	d.notify(label, state, false)
	return nil
}

// WriteFlag writes one M coil with function code 15 and reads it back after the settle interval.
// DVP controllers do not always apply a multiple coils write to the M area, so a disagreeing or
// failed read back is followed by exactly one function code 05 write whose outcome is returned.
func (d *Device) WriteFlag(ctx context.Context, offset uint16, state bool) error {
	address, gen, err := d.prepare(AreaM, offset, 1, 1)
	if err != nil {
		return err
	}
	label := AreaM.Label(offset)
	if err := d.transport.WriteMultipleCoils(ctx, address, []bool{state}); err != nil {
		return d.fail(gen, "write", label, err)
	}
	klog.V(2).InfoS("Wrote flag", "address", label, "state", state)

	time.Sleep(d.settleInterval)
	verify, err := d.transport.ReadCoils(ctx, address, 1)
	switch {
	case err != nil:
		d.observe(gen, err)
		klog.V(1).InfoS("Failed to verify flag", "address", label, "error", err)
	case len(verify) > 0 && verify[0] == state:
		d.notify(label, state, false)
		return nil
	default:
		klog.V(1).InfoS("Flag write verification failed", "address", label, "expected", state)
	}

	if err := d.transport.WriteSingleCoil(ctx, address, state); err != nil {
		return d.fail(gen, "write", label, err)
	}
	klog.V(2).InfoS("Wrote flag with single coil write", "address", label, "state", state)
	d.notify(label, state, true)
	return nil
}

// Write dispatches a coil write to WriteFlag or WriteOutput.
func (d *Device) Write(ctx context.Context, area Area, offset uint16, state bool) error {
	switch area {
	case AreaM:
		return d.WriteFlag(ctx, offset, state)
	case AreaY:
		return d.WriteOutput(ctx, offset, state)
	}
	return ErrUnsupportedArea
}

func (d *Device) prepare(area Area, offset uint16, count uint16, limit uint16) (uint16, uint64, error) {
	if count == 0 || count > limit {
		return 0, 0, ErrInvalidRange
	}
	address, err := area.Address(offset, count)
	if err != nil {
		return 0, 0, err
	}
	gen, err := d.session()
	if err != nil {
		return 0, 0, err
	}
	return address, gen, nil
}

func (d *Device) fail(gen uint64, op string, address string, err error) error {
	d.observe(gen, err)
	klog.V(2).InfoS("PLC transaction failed", "op", op, "address", address, "error", err)
	return &CommunicationError{Op: op, Address: address, Err: err}
}

// observe drops the connected flag when the port itself is gone, timeouts and protocol errors keep it.
// Errors from a port that has since been reopened are ignored.
func (d *Device) observe(gen uint64, err error) {
	if !errors.Is(err, modbusruntime.ErrBadConn) && !errors.Is(err, modbusruntime.ErrSerialPortClosed) {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if gen != d.generation {
		klog.V(2).InfoS("Ignoring error from a replaced connection", "error", err)
		return
	}
	if d.connected.CAS(true, false) {
		klog.V(1).InfoS("Lost connection to PLC", "error", err)
	}
}

func (d *Device) notify(address string, value interface{}, fallback bool) {
	if d.notifier == nil {
		return
	}
	d.notifier.Notify(&WriteEvent{
		Timestamp: time.Now(),
		Address:   address,
		Value:     value,
		Fallback:  fallback,
	})
}
