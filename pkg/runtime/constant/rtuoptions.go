package constant

type StopBits int

const (
	// OneStopBit sets 1 stop bit (default)
	OneStopBit StopBits = iota
	// TwoStopBits sets 2 stop bits
	TwoStopBits
)

var StopBitsToString = map[StopBits]string{
	OneStopBit:  "1",
	TwoStopBits: "2",
}

var StringToStopBits = map[string]StopBits{
	"1": OneStopBit,
	"2": TwoStopBits,
}

type Parity int

const (
	// NoParity disable parity control (default)
	NoParity Parity = iota
	// OddParity enable odd-parity check
	OddParity
	// EvenParity enable even-parity check
	EvenParity
)

var ParityToString = map[Parity]string{
	NoParity:   "noParity",
	OddParity:  "oddParity",
	EvenParity: "evenParity",
}

var StringToParity = map[string]Parity{
	"noParity":   NoParity,
	"oddParity":  OddParity,
	"evenParity": EvenParity,
}

// Framing selects how a PDU is wrapped on the serial line.
type Framing int

const (
	// ASCIIFraming ':' + hex + LRC + CRLF, used by Delta DVP controllers out of the box
	ASCIIFraming Framing = iota
	// RTUFraming binary + CRC16
	RTUFraming
)

var FramingToString = map[Framing]string{
	ASCIIFraming: "ascii",
	RTUFraming:   "rtu",
}

var StringToFraming = map[string]Framing{
	"ascii": ASCIIFraming,
	"rtu":   RTUFraming,
}
