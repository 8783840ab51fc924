package runtime

import (
	"errors"

	"plcgateway/pkg/runtime/constant"
)

var ErrBadConn = errors.New("serial bad connection")
var ErrSerialPortClosed = errors.New("serial port closed")
var ErrServerBadResp = errors.New("serial server bad response")
var ErrResponseTimeout = errors.New("modbus response timeout")

const (
	// functionCode01/02 一次最多读取2000个线圈
	MaxReadBits = 2000
	// functionCode03 word最多读取125个寄存器
	MaxReadRegisters = 125

	CoilOn  uint16 = 0xFF00
	CoilOff uint16 = 0x0000
)

// ParityToSerial goburrow/serial 只支持 N/E/O
var ParityToSerial = map[constant.Parity]string{
	constant.NoParity:   "N",
	constant.OddParity:  "O",
	constant.EvenParity: "E",
}

var StopBitsToSerial = map[constant.StopBits]int{
	constant.OneStopBit:  1,
	constant.TwoStopBits: 2,
}
