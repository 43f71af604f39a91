package devices

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/mobile-next/adbctl/rendezvous"
	"github.com/mobile-next/adbctl/utils"
)

// Executor runs commands on one device. *adb.Device implements it.
type Executor interface {
	Serial() string
	Exec(cmd string) ([]byte, error)
	ExecStream(cmd string) (net.Conn, error)
	DialTCP(port int) (net.Conn, error)
}

type Hypervisor string

const (
	HypervisorAVD        Hypervisor = "avd"
	HypervisorVirtualBox Hypervisor = "vbox"
	HypervisorHyperV     Hypervisor = "hyper-v"
)

const (
	// Links slower than this prefer compressed or tunnelled screenshots.
	SlowConnectionMiBps = 64.0

	speedProbeCommand = "dd if=/dev/zero bs=2048 count=2048 status=none"
	speedProbeWindow  = 500 * time.Millisecond

	avdHostLoopback = "10.0.2.2"

	natProbeTimeout = 2 * time.Second
)

// Facts are probe results known in advance. Nil fields are probed.
type Facts struct {
	ConnectionSpeed      *float64
	Hypervisor           *Hypervisor
	NatLoopback          *string
	HostReachableAddress *string
	NcCommand            *string
}

// lazy memoizes one optional value.
type lazy[T any] struct {
	once sync.Once
	val  T
	ok   bool
}

func (l *lazy[T]) get(probe func() (T, bool)) (T, bool) {
	l.once.Do(func() {
		l.val, l.ok = probe()
	})
	return l.val, l.ok
}

func (l *lazy[T]) preload(v *T) {
	if v == nil {
		return
	}
	l.once.Do(func() {
		l.val, l.ok = *v, true
	})
}

// Probe discovers device quirks on first use and remembers them. Every
// fact reports absence with ok=false rather than an error.
type Probe struct {
	dev        Executor
	rendezvous func() (*rendezvous.Host, error)
	clock      clock

	speed       lazy[float64]
	hypervisor  lazy[Hypervisor]
	natLoopback lazy[string]
	reachable   lazy[string]
	nc          lazy[string]
}

func NewProbe(dev Executor, host func() (*rendezvous.Host, error), preload *Facts) *Probe {
	if host == nil {
		host = rendezvous.Default
	}
	p := &Probe{dev: dev, rendezvous: host, clock: realClock{}}
	if preload != nil {
		p.speed.preload(preload.ConnectionSpeed)
		p.hypervisor.preload(preload.Hypervisor)
		p.natLoopback.preload(preload.NatLoopback)
		p.reachable.preload(preload.HostReachableAddress)
		p.nc.preload(preload.NcCommand)
	}
	return p
}

func (p *Probe) debug(format string, args ...interface{}) {
	utils.Verbose("%s: "+format, append([]interface{}{p.dev.Serial()}, args...)...)
}

func (p *Probe) exec(cmd string) (string, bool) {
	out, err := p.dev.Exec(cmd)
	if err != nil {
		p.debug("probe command %q failed: %v", cmd, err)
		return "", false
	}
	return string(out), true
}

// ConnectionSpeed is adb throughput in MiB/s.
func (p *Probe) ConnectionSpeed() (float64, bool) {
	return p.speed.get(p.measureSpeed)
}

// SlowConnection reports a measured throughput below SlowConnectionMiBps.
func (p *Probe) SlowConnection() bool {
	speed, ok := p.ConnectionSpeed()
	return ok && speed < SlowConnectionMiBps
}

func (p *Probe) measureSpeed() (float64, bool) {
	stream, err := p.dev.ExecStream(speedProbeCommand)
	if err != nil {
		p.debug("speed probe: %v", err)
		return 0, false
	}
	defer stream.Close()

	buf := make([]byte, 64*1024)
	// time to first byte is not part of the measurement
	if _, err := io.ReadFull(stream, buf[:1]); err != nil {
		p.debug("speed probe: no data: %v", err)
		return 0, false
	}

	start := p.clock.Now()
	var received int64
	var elapsed time.Duration
	for elapsed < speedProbeWindow {
		n, err := stream.Read(buf)
		received += int64(n)
		elapsed = p.clock.Now().Sub(start)
		if err != nil {
			break
		}
	}
	if elapsed <= 0 {
		p.debug("speed probe: no measurable interval")
		return 0, false
	}

	speed := float64(received) / (1 << 20) / elapsed.Seconds()
	p.debug("adb throughput %.1f MiB/s", speed)
	return speed, true
}

// Hypervisor identifies the virtual machine an emulator runs in.
func (p *Probe) Hypervisor() (Hypervisor, bool) {
	return p.hypervisor.get(p.detectHypervisor)
}

func isEmulatorSerial(serial string) bool {
	return strings.HasPrefix(serial, "emulator-") || strings.HasPrefix(serial, "127.0.0.1:")
}

func (p *Probe) detectHypervisor() (Hypervisor, bool) {
	if !isEmulatorSerial(p.dev.Serial()) {
		return "", false
	}

	if board, ok := p.exec("getprop ro.product.board"); ok && strings.Contains(board, "goldfish") {
		return HypervisorAVD, true
	}

	vendor, _ := p.exec("cat /sys/class/block/?da/device/vendor")
	model, _ := p.exec("cat /sys/class/block/?da/device/model")
	return classifyDisk(vendor, model)
}

// classifyDisk reads the backing disk's vendor and model strings.
// Hyper-V reports vendor "Msft" and model "Virtual Disk".
func classifyDisk(vendor, model string) (Hypervisor, bool) {
	disk := strings.TrimSpace(vendor) + " " + strings.TrimSpace(model)
	switch {
	case strings.Contains(disk, "VBOX"):
		return HypervisorVirtualBox, true
	case strings.Contains(disk, "Msft Virtual"):
		return HypervisorHyperV, true
	}
	return "", false
}

// NatLoopback is an address inside the emulator's NAT that reaches this host.
func (p *Probe) NatLoopback() (string, bool) {
	return p.natLoopback.get(p.detectNatLoopback)
}

func (p *Probe) detectNatLoopback() (string, bool) {
	hv, ok := p.Hypervisor()
	if !ok {
		return "", false
	}
	switch hv {
	case HypervisorAVD:
		return avdHostLoopback, true
	case HypervisorVirtualBox:
		arp, ok := p.exec("cat /proc/net/arp")
		if !ok {
			return "", false
		}
		for _, addr := range parseARPTable(arp) {
			if p.testReverseConnection(addr) {
				p.debug("nat loopback %s verified", addr)
				return addr, true
			}
		}
	}
	return "", false
}

// parseARPTable returns the address column of /proc/net/arp.
func parseARPTable(table string) []string {
	var addrs []string
	scanner := bufio.NewScanner(strings.NewReader(table))
	first := true
	for scanner.Scan() {
		if first {
			first = false
			continue
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if _, err := netip.ParseAddr(fields[0]); err == nil {
			addrs = append(addrs, fields[0])
		}
	}
	return addrs
}

// testReverseConnection asks the device to dial addr back into the
// rendezvous host and checks that the control bytes arrive.
func (p *Probe) testReverseConnection(addr string) bool {
	nc, ok := p.NcCommand()
	if !ok {
		return false
	}
	host, err := p.rendezvous()
	if err != nil {
		p.debug("rendezvous host unavailable: %v", err)
		return false
	}
	future, err := host.Register()
	if err != nil {
		p.debug("rendezvous register: %v", err)
		return false
	}

	cmd := fmt.Sprintf("echo -n %sOKAY | %s -w 1 %s %d", future.Cookie(), nc, addr, host.Port())
	ctl, err := p.dev.ExecStream(cmd)
	if err != nil {
		future.Cancel()
		p.debug("reverse connection via %s: %v", addr, err)
		return false
	}
	defer ctl.Close()

	var reply []byte
	err = future.Use(natProbeTimeout, func(conn net.Conn) error {
		_ = conn.SetReadDeadline(time.Now().Add(natProbeTimeout))
		data, rerr := io.ReadAll(io.LimitReader(conn, 16))
		reply = data
		return rerr
	})
	if err != nil {
		if !errors.Is(err, rendezvous.ErrTimeout) {
			p.debug("reverse connection via %s: %v", addr, err)
		}
		return false
	}
	return string(reply) == "OKAY"
}

// HostReachableAddress is a private address on the emulator's own network
// interface, used by Hyper-V guests that share a layer 2 segment with the host.
func (p *Probe) HostReachableAddress() (string, bool) {
	return p.reachable.get(p.detectReachable)
}

func (p *Probe) detectReachable() (string, bool) {
	hv, ok := p.Hypervisor()
	if !ok || hv != HypervisorHyperV {
		return "", false
	}
	out, ok := p.exec(`ip -4 addr | grep "scope global"`)
	if !ok {
		return "", false
	}
	return parseGlobalAddress(out)
}

// parseGlobalAddress picks the first private IPv4 address from `ip -4 addr`
// lines, skipping tunnel interfaces.
func parseGlobalAddress(out string) (string, bool) {
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 || fields[0] != "inet" {
			continue
		}
		iface := fields[len(fields)-1]
		if strings.HasPrefix(iface, "tun") || strings.HasPrefix(iface, "tap") {
			continue
		}
		prefix, err := netip.ParsePrefix(fields[1])
		if err != nil {
			continue
		}
		if addr := prefix.Addr(); addr.Is4() && addr.IsPrivate() {
			return addr.String(), true
		}
	}
	return "", false
}

// NcCommand is the netcat invocation available on the device.
func (p *Probe) NcCommand() (string, bool) {
	return p.nc.get(p.detectNc)
}

func (p *Probe) detectNc() (string, bool) {
	for _, candidate := range []string{"nc", "busybox nc"} {
		out, err := p.dev.Exec(candidate + " 127.0.0.1 0")
		if err != nil {
			continue
		}
		if strings.HasPrefix(string(out), "nc: ") {
			return candidate, true
		}
	}
	return "", false
}
