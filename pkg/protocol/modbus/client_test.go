package modbus

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	gomodbus "github.com/goburrow/modbus"
	"github.com/goburrow/serial"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	modbusruntime "plcgateway/pkg/protocol/modbus/runtime"
	"plcgateway/pkg/runtime/constant"
	"plcgateway/pkg/utils/binutil"
)

// memorySlave answers requests from in-memory coils and registers.
type memorySlave struct {
	coils     map[uint16]bool
	registers map[uint16]uint16
	exception byte
}

func newMemorySlave() *memorySlave {
	return &memorySlave{coils: map[uint16]bool{}, registers: map[uint16]uint16{}}
}

func (s *memorySlave) handle(request *gomodbus.ProtocolDataUnit) *gomodbus.ProtocolDataUnit {
	if s.exception != 0 {
		return &gomodbus.ProtocolDataUnit{FunctionCode: request.FunctionCode | 0x80, Data: []byte{s.exception}}
	}
	address := binary.BigEndian.Uint16(request.Data)
	value := binary.BigEndian.Uint16(request.Data[2:])
	switch request.FunctionCode {
	case gomodbus.FuncCodeReadCoils, gomodbus.FuncCodeReadDiscreteInputs:
		bits := make([]bool, value)
		for i := range bits {
			bits[i] = s.coils[address+uint16(i)]
		}
		packed := binutil.ShrinkBool(bits)
		return &gomodbus.ProtocolDataUnit{FunctionCode: request.FunctionCode, Data: append([]byte{byte(len(packed))}, packed...)}
	case gomodbus.FuncCodeReadHoldingRegisters:
		data := []byte{byte(value * 2)}
		for i := uint16(0); i < value; i++ {
			v := s.registers[address+i]
			data = append(data, byte(v>>8), byte(v))
		}
		return &gomodbus.ProtocolDataUnit{FunctionCode: request.FunctionCode, Data: data}
	case gomodbus.FuncCodeWriteSingleCoil:
		s.coils[address] = value == modbusruntime.CoilOn
	case gomodbus.FuncCodeWriteSingleRegister:
		s.registers[address] = value
	case gomodbus.FuncCodeWriteMultipleCoils:
		for i, on := range binutil.ExpandBool(request.Data[5:], int(value)) {
			s.coils[address+uint16(i)] = on
		}
		return &gomodbus.ProtocolDataUnit{FunctionCode: request.FunctionCode, Data: request.Data[:4]}
	}
	return &gomodbus.ProtocolDataUnit{FunctionCode: request.FunctionCode, Data: request.Data}
}

// fakeHandler keeps the real goburrow packager and replaces the serial port.
type fakeHandler struct {
	gomodbus.ClientHandler
	slave      *memorySlave
	requests   [][]byte
	raw        []byte
	sendErr    error
	connectErr error
	closed     int
}

func (h *fakeHandler) Connect() error {
	return h.connectErr
}

func (h *fakeHandler) Close() error {
	h.closed++
	return nil
}

func (h *fakeHandler) Send(aduRequest []byte) ([]byte, error) {
	h.requests = append(h.requests, append([]byte(nil), aduRequest...))
	if h.sendErr != nil {
		return nil, h.sendErr
	}
	if h.raw != nil {
		return h.raw, nil
	}
	request, err := h.ClientHandler.Decode(aduRequest)
	if err != nil {
		return nil, err
	}
	return h.ClientHandler.Encode(h.slave.handle(request))
}

func testConfig(framing constant.Framing) ClientConfig {
	return ClientConfig{
		Address:  "/dev/ttyACM0",
		BaudRate: 9600,
		DataBits: 7,
		Parity:   constant.EvenParity,
		StopBits: constant.OneStopBit,
		Framing:  framing,
		Slave:    1,
		Timeout:  time.Second,
	}
}

func newTestClient(t *testing.T, framing constant.Framing) (*Client, *fakeHandler) {
	h := &fakeHandler{slave: newMemorySlave()}
	c := NewClient(testConfig(framing), WithHandlerFunc(func(config ClientConfig) Handler {
		h.ClientHandler = newHandler(config)
		return h
	}))
	require.NoError(t, c.Connect())
	return c, h
}

func TestNewHandler(t *testing.T) {
	ascii, ok := newHandler(testConfig(constant.ASCIIFraming)).(*gomodbus.ASCIIClientHandler)
	require.True(t, ok)
	assert.Equal(t, "/dev/ttyACM0", ascii.Address)
	assert.Equal(t, 9600, ascii.BaudRate)
	assert.Equal(t, 7, ascii.DataBits)
	assert.Equal(t, "E", ascii.Parity)
	assert.Equal(t, 1, ascii.StopBits)
	assert.Equal(t, byte(1), ascii.SlaveId)
	assert.Equal(t, time.Second, ascii.Timeout)
	assert.Equal(t, time.Duration(0), ascii.IdleTimeout)

	config := testConfig(constant.RTUFraming)
	config.Parity = constant.NoParity
	config.StopBits = constant.TwoStopBits
	rtu, ok := newHandler(config).(*gomodbus.RTUClientHandler)
	require.True(t, ok)
	assert.Equal(t, "N", rtu.Parity)
	assert.Equal(t, 2, rtu.StopBits)
}

func TestASCIIReadHoldingRegisters(t *testing.T) {
	c, h := newTestClient(t, constant.ASCIIFraming)
	h.slave.registers[0x1000] = 1
	h.slave.registers[0x1001] = 2

	values, err := c.ReadHoldingRegisters(context.Background(), 0x1000, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint16{1, 2}, values)
	require.Len(t, h.requests, 1)
	assert.Equal(t, ":010310000002EA\r\n", string(h.requests[0]))
}

func TestASCIICoils(t *testing.T) {
	c, h := newTestClient(t, constant.ASCIIFraming)
	ctx := context.Background()

	require.NoError(t, c.WriteSingleCoil(ctx, 0x0500, true))
	assert.Equal(t, ":01050500FF00F6\r\n", string(h.requests[0]))
	require.NoError(t, c.WriteMultipleCoils(ctx, 0x0801, []bool{true}))

	values, err := c.ReadCoils(ctx, 0x0800, 2)
	require.NoError(t, err)
	assert.Equal(t, []bool{false, true}, values)

	values, err = c.ReadDiscreteInputs(ctx, 0x0500, 1)
	require.NoError(t, err)
	assert.Equal(t, []bool{true}, values)

	require.NoError(t, c.WriteSingleRegister(ctx, 0x1005, 1234))
	assert.Equal(t, uint16(1234), h.slave.registers[0x1005])
}

func TestRTUFraming(t *testing.T) {
	c, h := newTestClient(t, constant.RTUFraming)
	ctx := context.Background()

	require.NoError(t, c.WriteMultipleCoils(ctx, 0x0800, []bool{true, false, true}))
	values, err := c.ReadCoils(ctx, 0x0800, 3)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, true}, values)
	// 地址(1) + 功能码(1) + ... + crc(2)
	assert.Equal(t, []byte{0x01, 0x01, 0x08, 0x00, 0x00, 0x03}, h.requests[1][:6])
	assert.Len(t, h.requests[1], 8)
}

func TestExceptionResponse(t *testing.T) {
	c, h := newTestClient(t, constant.ASCIIFraming)
	h.slave.exception = gomodbus.ExceptionCodeIllegalDataAddress

	_, err := c.ReadHoldingRegisters(context.Background(), 0x1000, 1)
	var exception *gomodbus.ModbusError
	require.True(t, errors.As(err, &exception))
	assert.Equal(t, byte(0x83), exception.FunctionCode)
	assert.Equal(t, byte(2), exception.ExceptionCode)
	assert.False(t, errors.Is(err, modbusruntime.ErrBadConn))
}

func TestErrorClassification(t *testing.T) {
	other := gomodbus.NewASCIIClientHandler("")
	other.SlaveId = 2
	wrongSlave, err := other.Encode(&gomodbus.ProtocolDataUnit{FunctionCode: 3, Data: []byte{2, 0, 1}})
	require.NoError(t, err)

	tests := []struct {
		name    string
		sendErr error
		raw     []byte
		want    error
	}{
		{name: "timeout", sendErr: serial.ErrTimeout, want: modbusruntime.ErrResponseTimeout},
		{name: "port failure", sendErr: errors.New("write /dev/ttyACM0: input/output error"), want: modbusruntime.ErrBadConn},
		{name: "bad hex", raw: []byte(":0103GG00\r\n"), want: modbusruntime.ErrServerBadResp},
		{name: "wrong slave", raw: wrongSlave, want: modbusruntime.ErrServerBadResp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, h := newTestClient(t, constant.ASCIIFraming)
			h.sendErr = tt.sendErr
			h.raw = tt.raw
			_, err := c.ReadHoldingRegisters(context.Background(), 0x1000, 1)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCloseAndConnect(t *testing.T) {
	c, h := newTestClient(t, constant.ASCIIFraming)
	require.NoError(t, c.Connect())
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Equal(t, 1, h.closed)

	_, err := c.ReadCoils(context.Background(), 0x0800, 1)
	assert.ErrorIs(t, err, modbusruntime.ErrSerialPortClosed)

	h.connectErr = errors.New("no such file or directory")
	assert.Error(t, c.Connect())
	_, err = c.ReadCoils(context.Background(), 0x0800, 1)
	assert.ErrorIs(t, err, modbusruntime.ErrSerialPortClosed)

	h.connectErr = nil
	require.NoError(t, c.Connect())
	_, err = c.ReadCoils(context.Background(), 0x0800, 1)
	assert.NoError(t, err)
}

func TestCanceledContext(t *testing.T) {
	c, h := newTestClient(t, constant.ASCIIFraming)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.ReadCoils(ctx, 0x0800, 1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, h.requests)
}
