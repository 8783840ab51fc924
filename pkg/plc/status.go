package plc

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"
)

const (
	statusExtraOffset = 100
	statusExtraCount  = 4
)

// block is a fixed range read into a status snapshot.
type block struct {
	area   Area
	offset uint16
	count  uint16
}

var statusBlocks = []block{
	{area: AreaD, offset: 0, count: 10},
	{area: AreaM, offset: 0, count: 10},
	{area: AreaX, offset: 0, count: 8},
	{area: AreaY, offset: 0, count: 8},
}

// Snapshot is one read of the fixed status ranges. A range that could not be read is left out and
// named in Errors.
type Snapshot struct {
	Timestamp time.Time         `json:"timestamp"`
	Connected bool              `json:"connected"`
	Registers map[string]uint16 `json:"d_registers,omitempty"`
	Flags     map[string]bool   `json:"m_coils,omitempty"`
	Inputs    map[string]bool   `json:"x_inputs,omitempty"`
	Outputs   map[string]bool   `json:"y_outputs,omitempty"`
	Errors    []string          `json:"errors,omitempty"`
}

// Summary keeps only the cells that are on or non zero.
type Summary struct {
	Timestamp        time.Time         `json:"timestamp"`
	Connected        bool              `json:"connected"`
	FlagsOn          []string          `json:"m_coils_on"`
	OutputsOn        []string          `json:"y_outputs_on"`
	InputsOn         []string          `json:"x_inputs_on"`
	RegistersNonZero map[string]uint16 `json:"d_registers_nonzero"`
	Errors           []string          `json:"errors,omitempty"`
}

// Status reads D0-D9, M0-M9, X0-X7, Y0-Y7 and the blower/vibrofeeder block 100-103. It never fails.
func (d *Device) Status(ctx context.Context) *Snapshot {
	s := &Snapshot{Timestamp: time.Now()}

	blocks := make([]block, 0, len(statusBlocks)+1)
	blocks = append(blocks, statusBlocks...)
	blocks = append(blocks, block{area: d.extraArea, offset: statusExtraOffset, count: statusExtraCount})
	for _, b := range blocks {
		if b.area == AreaD {
			values, err := d.ReadRegisters(ctx, b.offset, b.count)
			if err != nil {
				s.addError(b, err)
				continue
			}
			if s.Registers == nil {
				s.Registers = make(map[string]uint16, len(values))
			}
			for i, v := range values {
				s.Registers[b.area.Label(b.offset+uint16(i))] = v
			}
			continue
		}

		values, err := d.Read(ctx, b.area, b.offset, b.count)
		if err != nil {
			s.addError(b, err)
			continue
		}
		m := s.bits(b.area)
		for i, v := range values {
			m[b.area.Label(b.offset+uint16(i))] = v
		}
	}

	s.Connected = d.Connected()
	return s
}

// Summary lists active flags, outputs and inputs and non zero registers in address order.
func (d *Device) Summary(ctx context.Context) *Summary {
	s := d.Status(ctx)
	return &Summary{
		Timestamp:        s.Timestamp,
		Connected:        s.Connected,
		FlagsOn:          active(s.Flags),
		OutputsOn:        active(s.Outputs),
		InputsOn:         active(s.Inputs),
		RegistersNonZero: nonZero(s.Registers),
		Errors:           s.Errors,
	}
}

func (s *Snapshot) bits(area Area) map[string]bool {
	var m *map[string]bool
	switch area {
	case AreaM:
		m = &s.Flags
	case AreaX:
		m = &s.Inputs
	default:
		m = &s.Outputs
	}
	if *m == nil {
		*m = make(map[string]bool)
	}
	return *m
}

func (s *Snapshot) addError(b block, err error) {
	s.Errors = append(s.Errors, fmt.Sprintf("%s: %v", b.area.RangeLabel(b.offset, b.count), err))
}

func active(m map[string]bool) []string {
	labels := make([]string, 0)
	for k, v := range m {
		if v {
			labels = append(labels, k)
		}
	}
	sortLabels(labels)
	return labels
}

func nonZero(m map[string]uint16) map[string]uint16 {
	result := make(map[string]uint16)
	for k, v := range m {
		if v != 0 {
			result[k] = v
		}
	}
	return result
}

// sortLabels orders labels of one area by offset, so M9 comes before M100.
func sortLabels(labels []string) {
	sort.Slice(labels, func(i, j int) bool {
		return labelOffset(labels[i]) < labelOffset(labels[j])
	})
}

func labelOffset(label string) int {
	n, _ := strconv.Atoi(label[1:])
	return n
}
