package capture

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"camwatch/internal/logger"
)

// fakeSource yields frames solid-filled with their sequence number.
type fakeSource struct {
	mu     sync.Mutex
	n      int
	limit  int // 0 = unlimited
	delay  time.Duration
	closed atomic.Bool
	reads  atomic.Int32
}

func (s *fakeSource) Read(m *gocv.Mat) bool {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.reads.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() || (s.limit > 0 && s.n >= s.limit) {
		return false
	}
	s.n++
	frame := gocv.NewMatWithSize(4, 4, gocv.MatTypeCV8UC1)
	frame.SetTo(gocv.NewScalar(float64(s.n), 0, 0, 0))
	frame.CopyTo(m)
	frame.Close()
	return true
}

func (s *fakeSource) Close() error {
	s.closed.Store(true)
	return nil
}

// stallSource delivers one frame, then blocks in Read until Close.
type stallSource struct {
	served  atomic.Bool
	release chan struct{}
	once    sync.Once
}

func newStallSource() *stallSource {
	return &stallSource{release: make(chan struct{})}
}

func (s *stallSource) Read(m *gocv.Mat) bool {
	if s.served.CompareAndSwap(false, true) {
		frame := gocv.NewMatWithSize(4, 4, gocv.MatTypeCV8UC1)
		frame.CopyTo(m)
		frame.Close()
		return true
	}
	<-s.release
	return false
}

func (s *stallSource) Close() error {
	s.once.Do(func() { close(s.release) })
	return nil
}

func testFrame(v uint8, seq uint64) *Frame {
	m := gocv.NewMatWithSize(2, 2, gocv.MatTypeCV8UC1)
	m.SetTo(gocv.NewScalar(float64(v), 0, 0, 0))
	return NewFrame(m, seq, time.Now())
}

// ========================================
// FrameBuffer
// ========================================

func TestFrameBuffer_EmptyRead(t *testing.T) {
	b := NewFrameBuffer()
	f, ok := b.Read()
	assert.False(t, ok)
	assert.Nil(t, f)
}

func TestFrameBuffer_ReadReturnsIndependentCopy(t *testing.T) {
	b := NewFrameBuffer()
	defer b.Close()
	b.Store(testFrame(7, 1))

	got, ok := b.Read()
	require.True(t, ok)
	defer got.Close()
	got.Mat.SetTo(gocv.NewScalar(99, 0, 0, 0))

	again, ok := b.Read()
	require.True(t, ok)
	defer again.Close()
	assert.Equal(t, uint8(7), again.Mat.GetUCharAt(0, 0))
	assert.Equal(t, uint64(1), again.Seq)
}

func TestFrameBuffer_StoreOverwritesAndSignals(t *testing.T) {
	b := NewFrameBuffer()
	defer b.Close()
	b.Store(testFrame(1, 1))
	b.Store(testFrame(2, 2))

	select {
	case <-b.Updated():
	default:
		t.Fatal("expected update signal")
	}
	select {
	case <-b.Updated():
		t.Fatal("signals should coalesce")
	default:
	}

	f, ok := b.Read()
	require.True(t, ok)
	defer f.Close()
	assert.Equal(t, uint64(2), f.Seq)
	assert.Equal(t, uint64(2), b.Stored())
}

func TestFrameBuffer_ConcurrentReaders(t *testing.T) {
	b := NewFrameBuffer()
	defer b.Close()
	b.Store(testFrame(0, 0))

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i < 200; i++ {
			b.Store(testFrame(uint8(i), uint64(i)))
		}
		close(stop)
	}()
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				f, ok := b.Read()
				if ok {
					// every pixel of a copy comes from the same frame
					assert.Equal(t, uint8(f.Seq), f.Mat.GetUCharAt(1, 1))
					f.Close()
				}
			}
		}()
	}
	wg.Wait()
}

// ========================================
// Unit
// ========================================

func TestUnit_CapturesAndStops(t *testing.T) {
	src := &fakeSource{delay: time.Millisecond}
	u := NewUnit(src, logger.Discard())
	require.NoError(t, u.Start())
	assert.ErrorIs(t, u.Start(), ErrStarted)

	require.NoError(t, u.WaitFirstFrame(context.Background(), time.Second))
	f, ok := u.Read()
	require.True(t, ok)
	assert.Equal(t, uint8(f.Seq), f.Mat.GetUCharAt(0, 0))
	f.Close()

	require.NoError(t, u.Stop())
	require.NoError(t, u.Stop())
	assert.True(t, src.closed.Load())
	assert.NoError(t, u.Err())

	select {
	case <-u.Done():
	default:
		t.Fatal("capture goroutine still running after Stop")
	}
	_, ok = u.Read()
	assert.False(t, ok, "buffer released on stop")
}

func TestUnit_ReadFailureEndsCapture(t *testing.T) {
	src := &fakeSource{limit: 3}
	u := NewUnit(src, logger.Discard())
	require.NoError(t, u.Start())

	select {
	case <-u.Done():
	case <-time.After(time.Second):
		t.Fatal("capture did not end")
	}
	assert.ErrorIs(t, u.Err(), ErrDeviceRead)
	assert.Equal(t, uint64(3), u.Frames())
	assert.Equal(t, int32(4), src.reads.Load(), "failed read is not retried")
	require.NoError(t, u.Stop())
}

func TestUnit_NoFrameBeforeTimeout(t *testing.T) {
	src := &fakeSource{delay: 200 * time.Millisecond}
	u := NewUnit(src, logger.Discard())
	require.NoError(t, u.Start())
	defer u.Stop()

	err := u.WaitFirstFrame(context.Background(), 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrNoFrame)
}

func TestUnit_DeviceDeadAtStart(t *testing.T) {
	src := &fakeSource{limit: -1}
	src.closed.Store(true)
	u := NewUnit(src, logger.Discard())
	require.NoError(t, u.Start())
	defer u.Stop()

	err := u.WaitFirstFrame(context.Background(), time.Second)
	assert.ErrorIs(t, err, ErrNoFrame)
}

func TestUnit_StopBeforeStart(t *testing.T) {
	src := &fakeSource{}
	u := NewUnit(src, logger.Discard())
	assert.NoError(t, u.Stop())
	assert.True(t, src.closed.Load())
}

func TestUnit_StopReleasesStalledRead(t *testing.T) {
	src := newStallSource()
	u := NewUnit(src, logger.Discard())
	u.stopGrace = 20 * time.Millisecond
	require.NoError(t, u.Start())
	require.NoError(t, u.WaitFirstFrame(context.Background(), time.Second))

	stopped := make(chan error, 1)
	go func() { stopped <- u.Stop() }()
	select {
	case err := <-stopped:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Stop hung on a blocked read")
	}
	assert.NoError(t, u.Err(), "stop is not a device failure")
}

// =============================================================================
// UDP source
// =============================================================================

func TestJPEGAssembler(t *testing.T) {
	var a jpegAssembler

	_, ok := a.Push([]byte{0x01, 0x02})
	assert.False(t, ok, "packet without a start marker is ignored")

	_, ok = a.Push([]byte{0xFF, 0xD8, 0xAA})
	assert.False(t, ok)
	img, ok := a.Push([]byte{0xBB, 0xFF, 0xD9})
	require.True(t, ok)
	assert.Equal(t, []byte{0xFF, 0xD8, 0xAA, 0xBB, 0xFF, 0xD9}, img)

	// a new start marker discards a partial image
	a.Push([]byte{0xFF, 0xD8, 0x01})
	img, ok = a.Push([]byte{0xFF, 0xD8, 0x02, 0xFF, 0xD9})
	require.True(t, ok)
	assert.Equal(t, []byte{0xFF, 0xD8, 0x02, 0xFF, 0xD9}, img)
}

func TestUDPSource_ReceivesFrames(t *testing.T) {
	src, err := ListenUDP("127.0.0.1:0", 0)
	require.NoError(t, err)
	defer src.Close()

	img := gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3)
	defer img.Close()
	img.SetTo(gocv.NewScalar(0, 0, 200, 0))
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, img)
	require.NoError(t, err)
	data := append([]byte(nil), buf.GetBytes()...)
	buf.Close()

	conn, err := net.Dial("udp", src.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	for start := 0; start < len(data); start += 1024 {
		end := start + 1024
		if end > len(data) {
			end = len(data)
		}
		_, err := conn.Write(data[start:end])
		require.NoError(t, err)
	}

	got := gocv.NewMat()
	defer got.Close()
	require.True(t, src.Read(&got))
	assert.Equal(t, 64, got.Cols())
	assert.Equal(t, 48, got.Rows())

	require.NoError(t, src.Close())
	assert.False(t, src.Read(&got))
	assert.NoError(t, src.Close())
}

func TestUDPSource_IdleSenderFailsCapture(t *testing.T) {
	src, err := ListenUDP("127.0.0.1:0", 30*time.Millisecond)
	require.NoError(t, err)

	u := NewUnit(src, logger.Discard())
	require.NoError(t, u.Start())
	select {
	case <-u.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("silent sender did not end capture")
	}
	assert.ErrorIs(t, u.Err(), ErrDeviceRead)
	require.NoError(t, u.Stop())
}

func TestUnit_StopSilentUDPSource(t *testing.T) {
	src, err := ListenUDP("127.0.0.1:0", 0)
	require.NoError(t, err)

	u := NewUnit(src, logger.Discard())
	require.NoError(t, u.Start())

	stopped := make(chan error, 1)
	go func() { stopped <- u.Stop() }()
	select {
	case err := <-stopped:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Stop hung waiting for a UDP frame")
	}
	assert.NoError(t, u.Err())
}
