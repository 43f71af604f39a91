package adb

import (
	"fmt"
	"net"
	"strconv"
)

type deviceDescriptorType int

const (
	// host:transport-any and host:<request>
	DeviceAny deviceDescriptorType = iota
	// host:transport:<serial> and host-serial:<serial>:<request>
	DeviceSerial
	// host:transport-usb and host-usb:<request>
	DeviceUsb
	// host:transport-local and host-local:<request>
	DeviceLocal
)

// DeviceDescriptor selects which device a transport session binds to.
type DeviceDescriptor struct {
	descriptorType deviceDescriptorType

	// Only used if Type is DeviceSerial.
	serial string
}

func AnyDevice() DeviceDescriptor {
	return DeviceDescriptor{descriptorType: DeviceAny}
}

func AnyUsbDevice() DeviceDescriptor {
	return DeviceDescriptor{descriptorType: DeviceUsb}
}

// AnyLocalDevice selects the single emulator.
func AnyLocalDevice() DeviceDescriptor {
	return DeviceDescriptor{descriptorType: DeviceLocal}
}

func DeviceWithSerial(serial string) DeviceDescriptor {
	return DeviceDescriptor{
		descriptorType: DeviceSerial,
		serial:         serial,
	}
}

func (d DeviceDescriptor) String() string {
	switch d.descriptorType {
	case DeviceSerial:
		return d.serial
	case DeviceUsb:
		return "<any usb>"
	case DeviceLocal:
		return "<any emulator>"
	default:
		return "<any>"
	}
}

func (d DeviceDescriptor) transportRequest() string {
	switch d.descriptorType {
	case DeviceSerial:
		return "host:transport:" + d.serial
	case DeviceUsb:
		return "host:transport-usb"
	case DeviceLocal:
		return "host:transport-local"
	default:
		return "host:transport-any"
	}
}

// isNetworkSerial reports whether the serial is a host:port address that
// the server can be asked to connect to.
func (d DeviceDescriptor) isNetworkSerial() bool {
	if d.descriptorType != DeviceSerial {
		return false
	}
	host, port, err := net.SplitHostPort(d.serial)
	if err != nil || host == "" {
		return false
	}
	n, err := strconv.Atoi(port)
	return err == nil && n > 0 && n < 65536
}

func (d DeviceDescriptor) mustSerial() string {
	if d.descriptorType != DeviceSerial {
		panic(fmt.Sprintf("descriptor %s has no serial", d))
	}
	return d.serial
}
