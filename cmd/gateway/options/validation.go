package options

import (
	"fmt"
	"net/url"
	"strconv"

	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/apimachinery/pkg/util/validation/field"
	"plcgateway/pkg/plc"
	"plcgateway/pkg/runtime/constant"
)

var (
	supportedParities      = sets.StringKeySet(constant.StringToParity)
	supportedStopBits      = sets.StringKeySet(constant.StringToStopBits)
	supportedFramings      = sets.StringKeySet(constant.StringToFraming)
	supportedExtraAreas    = sets.NewString(plc.AreaM.String(), plc.AreaY.String())
	supportedBrokerSchemes = sets.NewString("tcp", "ssl", "tls", "ws", "wss", "mqtt", "mqtts")
)

func Validate(o *Options) []error {
	var errs []error
	if err := o.BaseOptions.ValidateAndApply(); err != nil {
		errs = append(errs, err)
	}
	for _, err := range o.validate() {
		errs = append(errs, err)
	}

	return errs
}

func (o *Options) validate() field.ErrorList {
	var allErrs field.ErrorList
	if port, err := strconv.Atoi(o.Port); err != nil || port <= 0 || port > 65535 {
		allErrs = append(allErrs, field.Invalid(field.NewPath("port"), o.Port, "must be a number between 1 and 65535"))
	}
	if o.Wait.Duration < 0 {
		allErrs = append(allErrs, field.Invalid(field.NewPath("graceful-timeout"), o.Wait.Duration.String(), "must not be negative"))
	}
	if (len(o.CertFile) == 0) != (len(o.KeyFile) == 0) {
		allErrs = append(allErrs, field.Required(field.NewPath("key-file"), "cert-file and key-file must be set together"))
	}
	allErrs = append(allErrs, o.Serial.validate(field.NewPath("serial"))...)
	allErrs = append(allErrs, o.Device.validate(field.NewPath("device"))...)
	allErrs = append(allErrs, o.MQTT.validate(field.NewPath("mqtt"))...)
	return allErrs
}

func (s *SerialOptions) validate(fldPath *field.Path) field.ErrorList {
	var allErrs field.ErrorList
	if len(s.Address) == 0 {
		allErrs = append(allErrs, field.Required(fldPath.Child("address"), ""))
	}
	if s.BaudRate <= 0 {
		allErrs = append(allErrs, field.Invalid(fldPath.Child("baud-rate"), s.BaudRate, "must be positive"))
	}
	if s.DataBits < 5 || s.DataBits > 8 {
		allErrs = append(allErrs, field.Invalid(fldPath.Child("data-bits"), s.DataBits, "must be between 5 and 8"))
	}
	if !supportedParities.Has(s.Parity) {
		allErrs = append(allErrs, field.NotSupported(fldPath.Child("parity"), s.Parity, supportedParities.List()))
	}
	if !supportedStopBits.Has(s.StopBits) {
		allErrs = append(allErrs, field.NotSupported(fldPath.Child("stop-bits"), s.StopBits, supportedStopBits.List()))
	}
	if !supportedFramings.Has(s.Framing) {
		allErrs = append(allErrs, field.NotSupported(fldPath.Child("framing"), s.Framing, supportedFramings.List()))
	}
	// 0 为广播地址, 248-255 保留
	if s.Slave < 1 || s.Slave > 247 {
		allErrs = append(allErrs, field.Invalid(fldPath.Child("slave"), s.Slave, "must be between 1 and 247"))
	}
	if s.Timeout.Duration <= 0 {
		allErrs = append(allErrs, field.Invalid(fldPath.Child("timeout"), s.Timeout.Duration.String(), "must be positive"))
	}
	return allErrs
}

func (d *DeviceOptions) validate(fldPath *field.Path) field.ErrorList {
	var allErrs field.ErrorList
	if d.SettleInterval.Duration < 0 {
		allErrs = append(allErrs, field.Invalid(fldPath.Child("settle-interval"), d.SettleInterval.Duration.String(), "must not be negative"))
	}
	if !supportedExtraAreas.Has(d.StatusExtraArea) {
		allErrs = append(allErrs, field.NotSupported(fldPath.Child("status-extra-area"), d.StatusExtraArea, supportedExtraAreas.List()))
	}
	return allErrs
}

func (m *MQTTOptions) validate(fldPath *field.Path) field.ErrorList {
	var allErrs field.ErrorList
	if len(m.Broker) == 0 {
		return allErrs
	}
	u, err := url.Parse(m.Broker)
	if err != nil {
		allErrs = append(allErrs, field.Invalid(fldPath.Child("broker"), m.Broker, err.Error()))
	} else if !supportedBrokerSchemes.Has(u.Scheme) || len(u.Host) == 0 {
		allErrs = append(allErrs, field.Invalid(fldPath.Child("broker"), m.Broker, fmt.Sprintf("must be <scheme>://<host>:<port>, scheme one of %v", supportedBrokerSchemes.List())))
	}
	if len(m.TopicPrefix) == 0 {
		allErrs = append(allErrs, field.Required(fldPath.Child("topic-prefix"), ""))
	}
	return allErrs
}
