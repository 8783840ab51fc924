package plc

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mitchellh/mapstructure"
	"k8s.io/klog/v2"
	"plcgateway/pkg/apis/response"
)

const (
	APIVersion = "1.0.0"

	maxRangeCount = 100
	maxBulkCount  = 100
)

func InstallHandler(group *gin.RouterGroup, device *Device) {
	group.GET("/status", getStatus(device))
	group.GET("/status/summary", getSummary(device))

	group.GET("/d/:address", getRegister(device))
	group.POST("/d/:address", writeRegister(device))
	group.GET("/d/range/:start/:count", getRegisterRange(device))

	group.GET("/m/:address", getBit(device, AreaM))
	group.POST("/m/:address", writeBit(device, AreaM))
	group.GET("/y/:address", getBit(device, AreaY))
	group.POST("/y/:address", writeBit(device, AreaY))
	group.GET("/x/:address", getBit(device, AreaX))

	group.POST("/connect", connect(device))
	group.POST("/disconnect", disconnect(device))
	group.POST("/reconnect", reconnect(device))

	group.POST("/bulk/m", bulkWrite(device, AreaM, "coils"))
	group.POST("/bulk/y", bulkWrite(device, AreaY, "outputs"))
}

func Health(device *Device) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":        "running",
			"plc_connected": device.Connected(),
			"api_version":   APIVersion,
		})
	}
}

func getStatus(device *Device) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, device.Status(c.Request.Context()))
	}
}

func getSummary(device *Device) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, device.Summary(c.Request.Context()))
	}
}

func getRegister(device *Device) gin.HandlerFunc {
	return func(c *gin.Context) {
		offset, ok := parseOffset(c, device, "address")
		if !ok {
			return
		}
		values, err := device.ReadRegisters(c.Request.Context(), offset, 1)
		if err != nil {
			abort(c, device, "read", AreaD.Label(offset), err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"address": AreaD.Label(offset),
			"value":   values[0],
		})
	}
}

func writeRegister(device *Device) gin.HandlerFunc {
	return func(c *gin.Context) {
		offset, ok := parseOffset(c, device, "address")
		if !ok {
			return
		}
		var body struct {
			Value int64 `mapstructure:"value"`
		}
		if !decodeBody(c, device, &body) {
			return
		}
		if body.Value < 0 || body.Value > 0xFFFF {
			c.JSON(http.StatusBadRequest, response.NewFailure(response.ErrValueOutOfRange(0, 0xFFFF), device.Connected()))
			return
		}
		if err := device.WriteRegister(c.Request.Context(), offset, uint16(body.Value)); err != nil {
			abort(c, device, "write", AreaD.Label(offset), err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"address": AreaD.Label(offset),
			"value":   body.Value,
		})
	}
}

func getRegisterRange(device *Device) gin.HandlerFunc {
	return func(c *gin.Context) {
		start, ok := parseOffset(c, device, "start")
		if !ok {
			return
		}
		count, err := strconv.ParseUint(c.Param("count"), 10, 64)
		if err != nil || count == 0 {
			c.JSON(http.StatusBadRequest, response.NewFailure(response.ErrInvalidParameter("count", c.Param("count")), device.Connected()))
			return
		}
		if count > maxRangeCount {
			c.JSON(http.StatusBadRequest, response.NewFailure(response.ErrRangeTooLarge(maxRangeCount, "registers"), device.Connected()))
			return
		}
		values, err := device.ReadRegisters(c.Request.Context(), start, uint16(count))
		if err != nil {
			abort(c, device, "read", AreaD.RangeLabel(start, uint16(count)), err)
			return
		}
		registers := make(map[string]uint16, len(values))
		for i, v := range values {
			registers[AreaD.Label(start+uint16(i))] = v
		}
		c.JSON(http.StatusOK, gin.H{
			"success":   true,
			"start":     start,
			"count":     count,
			"registers": registers,
		})
	}
}

func getBit(device *Device, area Area) gin.HandlerFunc {
	return func(c *gin.Context) {
		offset, ok := parseOffset(c, device, "address")
		if !ok {
			return
		}
		values, err := device.Read(c.Request.Context(), area, offset, 1)
		if err != nil {
			abort(c, device, "read", area.Label(offset), err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"address": area.Label(offset),
			"state":   values[0],
		})
	}
}

func writeBit(device *Device, area Area) gin.HandlerFunc {
	return func(c *gin.Context) {
		offset, ok := parseOffset(c, device, "address")
		if !ok {
			return
		}
		var body struct {
			State bool `mapstructure:"state"`
		}
		if !decodeBody(c, device, &body) {
			return
		}
		if err := device.Write(c.Request.Context(), area, offset, body.State); err != nil {
			abort(c, device, "write", area.Label(offset), err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"address": area.Label(offset),
			"state":   body.State,
		})
	}
}

func connect(device *Device) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := device.Connect(); err != nil {
			c.JSON(http.StatusInternalServerError, response.NewFailure(response.ErrConnect(errors.Unwrap(err)), device.Connected()))
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Connected to PLC"})
	}
}

func disconnect(device *Device) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := device.Disconnect(); err != nil {
			c.JSON(http.StatusInternalServerError, response.NewFailure(response.ErrInternal(err), device.Connected()))
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Disconnected from PLC"})
	}
}

func reconnect(device *Device) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := device.Reconnect(); err != nil {
			c.JSON(http.StatusInternalServerError, response.NewFailure(response.ErrConnect(errors.Unwrap(err)), device.Connected()))
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Reconnected to PLC"})
	}
}

// BulkEntry is one coil of a bulk write, in request order.
type BulkEntry struct {
	Offset uint16
	State  bool
}

type BulkResult struct {
	Address string `json:"address"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// bulkWrite accepts {"<key>": {"0": true, "3": false}} or [{"address": 0, "state": true}].
// The whole request is validated before the first write.
func bulkWrite(device *Device, area Area, key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := io.ReadAll(c.Request.Body)
		if err != nil {
			klog.V(2).InfoS("Failed to get request body", "err", err)
			c.JSON(http.StatusBadRequest, response.NewFailure(response.ErrMalformedJSON, device.Connected()))
			return
		}
		entries, err := ParseBulkEntries(raw, area, key)
		if err != nil {
			klog.V(2).InfoS("Failed to parse bulk write", "area", area, "err", err)
			c.JSON(http.StatusBadRequest, response.NewFailure(err, device.Connected()))
			return
		}

		results := make([]BulkResult, 0, len(entries))
		succeeded := 0
		for _, e := range entries {
			result := BulkResult{Address: area.Label(e.Offset)}
			if err := device.Write(c.Request.Context(), area, e.Offset, e.State); err != nil {
				result.Error = err.Error()
			} else {
				result.Success = true
				succeeded++
			}
			results = append(results, result)
		}
		c.JSON(http.StatusOK, gin.H{
			"success":   succeeded == len(entries),
			"total":     len(entries),
			"succeeded": succeeded,
			"results":   results,
		})
	}
}

// ParseBulkEntries decodes a bulk write body keeping the order of the request.
func ParseBulkEntries(raw []byte, area Area, key string) ([]BulkEntry, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, response.ErrMalformedJSON
	}
	if raw[0] == '{' {
		var body map[string]json.RawMessage
		if err := json.Unmarshal(raw, &body); err != nil {
			return nil, response.ErrMalformedJSON
		}
		raw = bytes.TrimSpace(body[key])
		if len(raw) == 0 {
			return []BulkEntry{}, nil
		}
	}

	type rawEntry struct {
		Address interface{} `mapstructure:"address"`
		State   interface{} `mapstructure:"state"`
	}
	var rawEntries []rawEntry
	switch raw[0] {
	case '{':
		dec := json.NewDecoder(bytes.NewReader(raw))
		// 逐个读取 key 以保留请求中的顺序
		if _, err := dec.Token(); err != nil {
			return nil, response.ErrMalformedJSON
		}
		for dec.More() {
			t, err := dec.Token()
			if err != nil {
				return nil, response.ErrMalformedJSON
			}
			var state interface{}
			if err := dec.Decode(&state); err != nil {
				return nil, response.ErrMalformedJSON
			}
			rawEntries = append(rawEntries, rawEntry{Address: t, State: state})
		}
	case '[':
		var items []map[string]interface{}
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, response.ErrMalformedJSON
		}
		for _, item := range items {
			var e rawEntry
			if err := mapstructure.Decode(item, &e); err != nil {
				return nil, response.ErrRequestBody(err.Error())
			}
			rawEntries = append(rawEntries, e)
		}
	default:
		return nil, response.ErrMalformedJSON
	}

	if len(rawEntries) > maxBulkCount {
		return nil, response.ErrRangeTooLarge(maxBulkCount, "entries")
	}

	errs := &response.MultiError{}
	entries := make([]BulkEntry, 0, len(rawEntries))
	for _, e := range rawEntries {
		var address string
		if err := mapstructure.WeakDecode(e.Address, &address); err != nil {
			errs.Add(response.ErrInvalidAddress(strings.TrimSpace(string(mustMarshal(e.Address)))))
			continue
		}
		offset, err := strconv.ParseUint(address, 10, 16)
		if err != nil {
			errs.Add(response.ErrInvalidAddress(address))
			continue
		}
		if _, err := area.Address(uint16(offset), 1); err != nil {
			errs.Add(response.ErrInvalidAddress(area.Label(uint16(offset))))
			continue
		}
		var state bool
		if err := mapstructure.WeakDecode(e.State, &state); err != nil {
			errs.Add(response.ErrRequestBody("invalid state for " + area.Label(uint16(offset))))
			continue
		}
		entries = append(entries, BulkEntry{Offset: uint16(offset), State: state})
	}
	if errs.Len() > 0 {
		return nil, errs
	}
	return entries, nil
}

func mustMarshal(v interface{}) []byte {
	b, _ := json.Marshal(v)
	return b
}

func parseOffset(c *gin.Context, device *Device, name string) (uint16, bool) {
	v := c.Param(name)
	offset, err := strconv.ParseUint(v, 10, 16)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.NewFailure(response.ErrInvalidAddress(v), device.Connected()))
		return 0, false
	}
	return uint16(offset), true
}

// decodeBody weakly decodes a JSON object body into out, "12" and 12 are both accepted as a number.
func decodeBody(c *gin.Context, device *Device, out interface{}) bool {
	var body map[string]interface{}
	if err := json.NewDecoder(c.Request.Body).Decode(&body); err != nil {
		klog.V(2).InfoS("Failed to parse request body", "err", err)
		c.JSON(http.StatusBadRequest, response.NewFailure(response.ErrMalformedJSON, device.Connected()))
		return false
	}
	if err := mapstructure.WeakDecode(body, out); err != nil {
		klog.V(2).InfoS("Failed to decode request body", "err", err)
		c.JSON(http.StatusBadRequest, response.NewFailure(response.ErrRequestBody(err.Error()), device.Connected()))
		return false
	}
	return true
}

// abort maps a Device error onto the API error body, bad addresses are the caller's fault.
func abort(c *gin.Context, device *Device, op string, address string, err error) {
	switch {
	case errors.Is(err, ErrAddressOutOfRange), errors.Is(err, ErrInvalidRange), errors.Is(err, ErrUnsupportedArea):
		c.JSON(http.StatusBadRequest, response.NewFailure(response.ErrInvalidAddress(address), device.Connected()))
	default:
		var ce *CommunicationError
		if errors.As(err, &ce) {
			err = ce.Err
		}
		c.JSON(http.StatusInternalServerError, response.NewFailure(response.ErrCommunication(op, address, err), device.Connected()))
	}
}
