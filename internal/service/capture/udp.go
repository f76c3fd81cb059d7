package capture

import (
	"bytes"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// UDPScheme selects a UDPSource in DeviceOptions.Device, e.g. "udp://:9000".
const UDPScheme = "udp://"

const maxPacket = 2048

var (
	jpegHeader = []byte{0xFF, 0xD8}
	jpegFooter = []byte{0xFF, 0xD9}
)

// jpegAssembler rebuilds JPEG images from a packet stream: a packet starting
// with the SOI marker opens an image and one ending with EOI completes it.
type jpegAssembler struct {
	buf bytes.Buffer
}

// Push adds one packet and returns a complete image when it has one.
func (a *jpegAssembler) Push(pkt []byte) ([]byte, bool) {
	if bytes.HasPrefix(pkt, jpegHeader) {
		a.buf.Reset()
	} else if a.buf.Len() == 0 {
		// mid-image packet without its start
		return nil, false
	}
	a.buf.Write(pkt)

	if !bytes.HasSuffix(pkt, jpegFooter) {
		return nil, false
	}
	full := make([]byte, a.buf.Len())
	copy(full, a.buf.Bytes())
	a.buf.Reset()
	return full, true
}

// UDPSource receives JPEG frames pushed over UDP by network cameras.
// Packets are grouped per sender address. Only the newest complete image is
// kept; Read blocks until one arrives or the sender has been silent for the
// idle timeout.
type UDPSource struct {
	conn   *net.UDPConn
	idle   time.Duration
	latest chan []byte
	once   sync.Once
	done   chan struct{}
}

// ListenUDP binds addr (":9000") and starts receiving. A positive idle makes
// Read fail when no complete image arrives for that long.
func ListenUDP(addr string, idle time.Duration) (*UDPSource, error) {
	ua, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve udp address %q", addr)
	}
	conn, err := net.ListenUDP("udp", ua)
	if err != nil {
		return nil, errors.Wrapf(err, "listen on udp %q", addr)
	}

	s := &UDPSource{
		conn:   conn,
		idle:   idle,
		latest: make(chan []byte, 1),
		done:   make(chan struct{}),
	}
	go s.receive()
	return s, nil
}

// Addr is the bound local address.
func (s *UDPSource) Addr() net.Addr {
	return s.conn.LocalAddr()
}

func (s *UDPSource) receive() {
	packet := make([]byte, maxPacket)
	senders := make(map[string]*jpegAssembler)
	for {
		n, remote, err := s.conn.ReadFromUDP(packet)
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return
		}

		ip := remote.IP.String()
		asm, ok := senders[ip]
		if !ok {
			asm = &jpegAssembler{}
			senders[ip] = asm
		}
		if img, ok := asm.Push(packet[:n]); ok {
			s.offer(img)
		}
	}
}

// offer replaces any unread image with img.
func (s *UDPSource) offer(img []byte) {
	for {
		select {
		case s.latest <- img:
			return
		default:
		}
		select {
		case <-s.latest:
		default:
		}
	}
}

// Read decodes the next complete image into m. It returns false once the
// source is closed or the sender went idle.
func (s *UDPSource) Read(m *gocv.Mat) bool {
	var idle <-chan time.Time
	if s.idle > 0 {
		timer := time.NewTimer(s.idle)
		defer timer.Stop()
		idle = timer.C
	}
	for {
		select {
		case <-s.done:
			return false
		case <-idle:
			return false
		case img := <-s.latest:
			decoded, err := gocv.IMDecode(img, gocv.IMReadColor)
			if err != nil {
				continue
			}
			if decoded.Empty() {
				decoded.Close()
				continue
			}
			decoded.CopyTo(m)
			decoded.Close()
			return true
		}
	}
}

// Close stops receiving and releases a blocked Read. Safe to call while Read
// runs on another goroutine.
func (s *UDPSource) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.conn.Close()
	})
	return err
}

// Open returns the source named by opts.Device: a UDP listener for
// "udp://host:port", otherwise a camera index or stream URL.
func Open(opts DeviceOptions) (Source, error) {
	if addr, ok := strings.CutPrefix(opts.Device, UDPScheme); ok {
		return ListenUDP(addr, opts.IdleTimeout)
	}
	vc, err := OpenDevice(opts)
	if err != nil {
		return nil, err
	}
	return vc, nil
}

// Interrupt releases a Read blocked on another goroutine by closing the
// source.
func (s *UDPSource) Interrupt() {
	s.Close()
}
