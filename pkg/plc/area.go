package plc

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Area is one of the four Delta DVP memory regions reachable over modbus.
type Area int8

const (
	// AreaD holding registers
	AreaD Area = iota
	// AreaM auxiliary relays, software flags
	AreaM
	// AreaX discrete inputs, read only
	AreaX
	// AreaY physical outputs
	AreaY
)

var AreaToString = map[Area]string{
	AreaD: "D",
	AreaM: "M",
	AreaX: "X",
	AreaY: "Y",
}

var StringToArea = map[string]Area{
	"D": AreaD,
	"M": AreaM,
	"X": AreaX,
	"Y": AreaY,
}

// 台达 DVP modbus 地址映射
var areaBase = map[Area]uint16{
	AreaD: 0x1000,
	AreaM: 0x0800,
	AreaX: 0x0400,
	AreaY: 0x0500,
}

func (a Area) Base() uint16 {
	return areaBase[a]
}

func (a Area) String() string {
	return AreaToString[a]
}

// Label names a single cell, e.g. M100.
func (a Area) Label(offset uint16) string {
	return a.String() + strconv.Itoa(int(offset))
}

// RangeLabel names count cells starting at offset, e.g. D0-D9.
func (a Area) RangeLabel(offset uint16, count uint16) string {
	if count <= 1 {
		return a.Label(offset)
	}
	return fmt.Sprintf("%s-%s", a.Label(offset), a.Label(offset+count-1))
}

// Address translates a logical offset into the wire address of the first cell. The whole
// range [offset, offset+count) must stay inside the 16 bit address space.
func (a Area) Address(offset uint16, count uint16) (uint16, error) {
	if count == 0 {
		return 0, ErrInvalidRange
	}
	end := uint32(a.Base()) + uint32(offset) + uint32(count) - 1
	if end > 0xFFFF {
		return 0, ErrAddressOutOfRange
	}
	return a.Base() + offset, nil
}

func (a Area) MarshalJSON() ([]byte, error) {
	if s, ok := AreaToString[a]; ok {
		return json.Marshal(s)
	}
	return nil, fmt.Errorf("unknown area %d", a)
}

func (a *Area) UnmarshalJSON(bytes []byte) error {
	var s string
	if err := json.Unmarshal(bytes, &s); err != nil {
		return err
	}

	v, ok := StringToArea[s]
	if !ok {
		return fmt.Errorf("unknown area %s", s)
	}
	*a = v
	return nil
}
