package modem

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zerynth/lib-quectel-ug96/internal/at"
)

// Proto is the transport protocol of a socket, numbered like IPPROTO_*.
type Proto int

const (
	TCP Proto = 6
	UDP Proto = 17
)

func (p Proto) String() string {
	if p == UDP {
		return "UDP"
	}
	return "TCP"
}

const (
	rxBufferSize = 1500
	maxChunk     = 1460
)

type sockState int32

const (
	sockIdle sockState = iota
	sockConnected
	sockFailed
)

// Socket is one entry of the fixed socket table. The id is the connection
// id used on the wire.
type Socket struct {
	id int

	// mu serializes operations on the socket and guards the fields below.
	mu     sync.Mutex
	proto  Proto
	secure bool
	bound  bool
	rx     *byteRing

	// recvMu admits one receiver at a time. It is taken before mu and stays
	// held while the receiver waits for data with mu released.
	recvMu sync.Mutex

	acquired   atomic.Bool
	toBeClosed atomic.Bool
	state      atomic.Int32
	gen        atomic.Uint32

	ready  chan struct{}
	openCh chan bool
}

func newSocket(id int) *Socket {
	return &Socket{
		id:     id,
		rx:     newByteRing(rxBufferSize),
		ready:  make(chan struct{}, 1),
		openCh: make(chan bool, 1),
	}
}

// signal wakes a receiver blocked on the socket.
func (s *Socket) signal() {
	select {
	case s.ready <- struct{}{}:
	default:
	}
}

func (s *Socket) drainReady() {
	select {
	case <-s.ready:
	default:
	}
}

// closing marks a remote close; the next operation reports it.
func (s *Socket) closing() {
	s.toBeClosed.Store(true)
	s.signal()
}

func (s *Socket) openResult(ok bool) {
	if ok {
		s.state.Store(int32(sockConnected))
	} else {
		s.state.Store(int32(sockFailed))
	}
	select {
	case s.openCh <- ok:
	default:
	}
}

// fail frees the entry but leaves it to be closed on the modem side by the
// next OpenSocket that picks it.
func (s *Socket) fail() {
	s.state.Store(int32(sockFailed))
	s.toBeClosed.Store(true)
	s.acquired.Store(false)
}

func (d *Driver) socketAt(id int) *Socket {
	if id < 0 || id >= len(d.sockets) {
		return nil
	}
	return d.sockets[id]
}

// lockSocket returns the reserved socket id with its lock held.
func (d *Driver) lockSocket(id int) (*Socket, error) {
	s := d.socketAt(id)
	if s == nil {
		return nil, fmt.Errorf("socket %d: %w", id, ErrInvalidSocket)
	}
	s.mu.Lock()
	if !s.acquired.Load() {
		s.mu.Unlock()
		return nil, fmt.Errorf("socket %d: %w", id, ErrInvalidSocket)
	}
	return s, nil
}

// lockReceiver is lockSocket for Recv and RecvFrom.
func (d *Driver) lockReceiver(id int) (*Socket, error) {
	s := d.socketAt(id)
	if s == nil {
		return nil, fmt.Errorf("socket %d: %w", id, ErrInvalidSocket)
	}
	s.recvMu.Lock()
	if _, err := d.lockSocket(id); err != nil {
		s.recvMu.Unlock()
		return nil, err
	}
	return s, nil
}

func (s *Socket) unlockReceiver() {
	s.mu.Unlock()
	s.recvMu.Unlock()
}

// OpenSocket reserves the first free table entry. Stale entries left by a
// remote close or a failed connect are closed on the modem first.
func (d *Driver) OpenSocket(ctx context.Context, proto Proto, secure bool) (int, error) {
	if secure && proto == UDP {
		return -1, fmt.Errorf("secure UDP socket: %w", ErrUnsupported)
	}
	d.sockMu.Lock()
	defer d.sockMu.Unlock()

	for _, s := range d.sockets {
		if s.acquired.Load() {
			continue
		}
		if s.toBeClosed.Load() {
			if err := d.closeRemote(ctx, s); err != nil {
				d.log.Warnf("closing stale socket %d: %v", s.id, err)
			}
		}
		s.mu.Lock()
		s.proto, s.secure, s.bound = proto, secure, false
		s.rx.Reset()
		s.state.Store(int32(sockIdle))
		s.toBeClosed.Store(false)
		s.gen.Add(1)
		s.drainReady()
		s.mu.Unlock()
		s.acquired.Store(true)
		d.log.Debugf("socket %d reserved (%s secure=%v)", s.id, proto, secure)
		return s.id, nil
	}
	return -1, ErrNoSocket
}

func (d *Driver) closeRemote(ctx context.Context, s *Socket) error {
	cmd := at.QICLOSE
	if s.secure {
		cmd = at.QSSLCLOSE
	}
	_, err := d.Exec(ctx, cmd, "="+at.FormatArgs(s.id, 10), SlotOptions{Timeout: closeTimeout})
	return err
}

// Connect opens the socket towards host:port and waits for the modem to
// report the outcome.
func (d *Driver) Connect(ctx context.Context, id int, host string, port int) error {
	s, err := d.lockSocket(id)
	if err != nil {
		return err
	}
	defer s.mu.Unlock()

	var cmd at.Command
	var args string
	if s.secure {
		cmd = at.QSSLOPEN
		args = at.FormatArgs(pdpContext, id, id, host, port)
	} else {
		cmd = at.QIOPEN
		args = at.FormatArgs(pdpContext, id, s.proto.String(), host, port, 0, 0)
	}
	if err := d.open(ctx, s, cmd, args); err != nil {
		return fmt.Errorf("connect socket %d to %s:%d: %w", id, host, port, err)
	}
	d.log.Infof("socket %d connected to %s:%d", id, host, port)
	return nil
}

// Bind opens a UDP service socket listening on port.
func (d *Driver) Bind(ctx context.Context, id int, port int) error {
	s, err := d.lockSocket(id)
	if err != nil {
		return err
	}
	defer s.mu.Unlock()
	if s.proto != UDP {
		return fmt.Errorf("bind socket %d: %w", id, ErrUnsupported)
	}
	args := at.FormatArgs(pdpContext, id, "UDP SERVICE", "127.0.0.1", 0, port, 0)
	if err := d.open(ctx, s, at.QIOPEN, args); err != nil {
		return fmt.Errorf("bind socket %d to port %d: %w", id, port, err)
	}
	s.bound = true
	return nil
}

func (d *Driver) open(ctx context.Context, s *Socket, cmd at.Command, args string) error {
	select {
	case <-s.openCh:
	default:
	}
	if _, err := d.Exec(ctx, cmd, "="+args, SlotOptions{Timeout: openTimeout}); err != nil {
		s.fail()
		return err
	}

	t := time.NewTimer(d.cfg.ConnectWait)
	defer t.Stop()
	for {
		select {
		case ok := <-s.openCh:
			if ok {
				return nil
			}
			s.fail()
			return ErrConnectFailed
		case <-s.ready:
			// CloseSocket or a closed notification
			if s.toBeClosed.Load() {
				s.fail()
				return ErrConnectionClosed
			}
		case <-t.C:
			s.fail()
			return ErrTimeout
		case <-ctx.Done():
			s.fail()
			return ctx.Err()
		case <-d.closed:
			return ErrClosed
		}
	}
}

// SendSocket writes data in chunks of at most 1460 bytes and returns how much
// the modem accepted. A SEND FAIL answer stops the transfer without error.
func (d *Driver) SendSocket(ctx context.Context, id int, data []byte) (int, error) {
	s, err := d.lockSocket(id)
	if err != nil {
		return 0, err
	}
	defer s.mu.Unlock()
	if s.toBeClosed.Load() {
		return 0, ErrConnectionClosed
	}

	cmd := at.QISEND
	if s.secure {
		cmd = at.QSSLSEND
	}
	sent := 0
	for sent < len(data) {
		chunk := data[sent:min(len(data), sent+maxChunk)]
		resp, err := d.withPrompt(ctx, cmd, "="+at.FormatArgs(id, len(chunk)), chunk,
			SlotOptions{Max: 32, Params: 1, Timeout: dataTimeout})
		if err != nil {
			return sent, fmt.Errorf("send on socket %d: %w", id, err)
		}
		if !sendOK(resp) {
			d.log.Warnf("socket %d: %s", id, resp)
			return sent, nil
		}
		sent += len(chunk)
	}
	return sent, nil
}

// SendTo sends one datagram to host:port.
func (d *Driver) SendTo(ctx context.Context, id int, data []byte, host string, port int) (int, error) {
	s, err := d.lockSocket(id)
	if err != nil {
		return 0, err
	}
	defer s.mu.Unlock()
	if s.proto != UDP {
		return 0, fmt.Errorf("sendto on socket %d: %w", id, ErrUnsupported)
	}
	if len(data) > maxChunk {
		return 0, fmt.Errorf("datagram of %d bytes: %w", len(data), ErrUnsupported)
	}
	if s.toBeClosed.Load() {
		return 0, ErrConnectionClosed
	}
	resp, err := d.withPrompt(ctx, at.QISEND, "="+at.FormatArgs(id, len(data), host, port), data,
		SlotOptions{Max: 32, Params: 1, Timeout: dataTimeout})
	if err != nil {
		return 0, fmt.Errorf("sendto on socket %d: %w", id, err)
	}
	if !sendOK(resp) {
		return 0, nil
	}
	return len(data), nil
}

func sendOK(resp []byte) bool {
	return string(resp) == "SEND OK"
}

// withPrompt sends cmd, writes payload once the modem shows its prompt and
// returns the final response line.
func (d *Driver) withPrompt(ctx context.Context, cmd at.Command, args string, payload []byte, opts SlotOptions) ([]byte, error) {
	s, err := d.Acquire(ctx, cmd, opts)
	if err != nil {
		return nil, err
	}
	defer d.Release(s)
	if err := d.Send(cmd, args); err != nil {
		return nil, err
	}
	if err := d.awaitMode(s, ModePrompt); err != nil {
		return nil, err
	}
	err = d.write(payload)
	s.unpark()
	if err != nil {
		return nil, err
	}
	if err := d.Wait(s); err != nil {
		return nil, err
	}
	return append([]byte(nil), s.Response()...), nil
}

// Recv returns buffered bytes first, then asks the modem for more. With
// nothing to read it waits up to RecvWait for a data notification and returns
// 0, nil if none came.
func (d *Driver) Recv(ctx context.Context, id int, p []byte) (int, error) {
	s, err := d.lockReceiver(id)
	if err != nil {
		return 0, err
	}
	defer s.unlockReceiver()
	if len(p) == 0 {
		return 0, nil
	}
	if n := s.rx.Read(p); n > 0 {
		return n, nil
	}
	if s.toBeClosed.Load() {
		return 0, ErrConnectionClosed
	}

	s.drainReady()
	n, err := d.pull(ctx, s, p)
	if err != nil || n > 0 {
		return n, err
	}
	if woke, err := d.awaitData(ctx, s); !woke || err != nil {
		return 0, err
	}
	return d.pull(ctx, s, p)
}

// awaitData waits up to RecvWait for a data notification with s.mu released
// and returns with it held again. It reports false when the wait ran out.
func (d *Driver) awaitData(ctx context.Context, s *Socket) (bool, error) {
	gen := s.gen.Load()
	s.mu.Unlock()

	t := time.NewTimer(d.cfg.RecvWait)
	var err error
	woke := false
	select {
	case <-s.ready:
		woke = true
	case <-t.C:
	case <-ctx.Done():
		err = ctx.Err()
	case <-d.closed:
		err = ErrClosed
	}
	t.Stop()

	s.mu.Lock()
	if err != nil {
		return false, err
	}
	if !s.acquired.Load() || s.gen.Load() != gen || s.toBeClosed.Load() {
		return false, ErrConnectionClosed
	}
	return woke, nil
}

// pull reads up to the ring capacity from the modem. What does not fit p is
// kept in the ring for the next Recv.
func (d *Driver) pull(ctx context.Context, s *Socket, p []byte) (int, error) {
	cmd := at.QIRD
	if s.secure {
		cmd = at.QSSLRECV
	}
	slot, err := d.Acquire(ctx, cmd, SlotOptions{Max: 64, Params: 1, Timeout: dataTimeout})
	if err != nil {
		return 0, err
	}
	defer d.Release(slot)
	if err := d.Send(cmd, "="+at.FormatArgs(s.id, s.rx.Cap())); err != nil {
		return 0, err
	}
	if err := d.awaitMode(slot, ModeBuffer); err != nil {
		return 0, fmt.Errorf("recv on socket %d: %w", s.id, err)
	}

	var rd int
	if at.ParseArgs(slot.Response(), "i", &rd) != 1 {
		slot.unpark()
		return 0, fmt.Errorf("recv on socket %d: %w", s.id, ErrMalformedResponse)
	}
	n := min(rd, len(p))
	got, err := d.readRaw(p[:n])
	if err == nil && rd > n {
		extra := make([]byte, rd-n)
		var m int
		m, err = d.readRaw(extra)
		s.rx.Write(extra[:m])
	}
	slot.unpark()
	if err != nil {
		return got, fmt.Errorf("recv on socket %d: %w", s.id, err)
	}
	if err := d.Wait(slot); err != nil {
		return got, fmt.Errorf("recv on socket %d: %w", s.id, err)
	}
	return got, nil
}

// readRaw fills p from the transport while the loop is parked in buffer mode.
func (d *Driver) readRaw(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	n, err := d.lr.ReadFull(p, dataTimeout)
	if errors.Is(err, at.ErrTimeout) {
		err = ErrTimeout
	}
	return n, err
}

// RecvFrom reads one datagram from a bound UDP socket. Bytes beyond len(p)
// are dropped.
func (d *Driver) RecvFrom(ctx context.Context, id int, p []byte) (n int, host string, port int, err error) {
	s, err := d.lockReceiver(id)
	if err != nil {
		return 0, "", 0, err
	}
	defer s.unlockReceiver()
	if s.proto != UDP {
		return 0, "", 0, fmt.Errorf("recvfrom on socket %d: %w", id, ErrUnsupported)
	}
	if s.toBeClosed.Load() {
		return 0, "", 0, ErrConnectionClosed
	}

	s.drainReady()
	n, host, port, err = d.pullFrom(ctx, s, p)
	if err != nil || n > 0 {
		return n, host, port, err
	}
	if woke, err := d.awaitData(ctx, s); !woke || err != nil {
		return 0, "", 0, err
	}
	return d.pullFrom(ctx, s, p)
}

func (d *Driver) pullFrom(ctx context.Context, s *Socket, p []byte) (int, string, int, error) {
	slot, err := d.Acquire(ctx, at.QIRD, SlotOptions{Max: 64, Params: 1, Timeout: dataTimeout})
	if err != nil {
		return 0, "", 0, err
	}
	defer d.Release(slot)
	if err := d.Send(at.QIRD, "="+at.FormatArgs(s.id)); err != nil {
		return 0, "", 0, err
	}
	if err := d.awaitMode(slot, ModeBuffer); err != nil {
		return 0, "", 0, fmt.Errorf("recvfrom on socket %d: %w", s.id, err)
	}

	var rd, port int
	var host string
	if at.ParseArgs(slot.Response(), "isi", &rd, &host, &port) < 1 {
		slot.unpark()
		return 0, "", 0, fmt.Errorf("recvfrom on socket %d: %w", s.id, ErrMalformedResponse)
	}
	var got int
	if rd > 0 {
		buf := make([]byte, rd)
		got, err = d.readRaw(buf)
		got = copy(p, buf[:got])
	}
	slot.unpark()
	if err != nil {
		return got, "", 0, fmt.Errorf("recvfrom on socket %d: %w", s.id, err)
	}
	if err := d.Wait(slot); err != nil {
		return got, "", 0, fmt.Errorf("recvfrom on socket %d: %w", s.id, err)
	}
	return got, string(at.Unquote([]byte(host))), port, nil
}

// Available reports how many bytes can be read without waiting.
func (d *Driver) Available(ctx context.Context, id int) (int, error) {
	s, err := d.lockSocket(id)
	if err != nil {
		return 0, err
	}
	defer s.mu.Unlock()
	if n := s.rx.Len(); n > 0 {
		return n, nil
	}
	if s.toBeClosed.Load() {
		return 0, ErrConnectionClosed
	}

	cmd := at.QIRD
	if s.secure {
		cmd = at.QSSLRECV
	}
	slot, err := d.Acquire(ctx, cmd, SlotOptions{Max: 64, Params: 1, Timeout: dataTimeout})
	if err != nil {
		return 0, err
	}
	defer d.Release(slot)
	if err := d.Send(cmd, "="+at.FormatArgs(id, 0)); err != nil {
		return 0, err
	}
	if err := d.awaitMode(slot, ModeBuffer); err != nil {
		return 0, fmt.Errorf("available on socket %d: %w", id, err)
	}
	var total, read, unread int
	parsed := at.ParseArgs(slot.Response(), "iii", &total, &read, &unread)
	slot.unpark()
	if err := d.Wait(slot); err != nil {
		return 0, fmt.Errorf("available on socket %d: %w", id, err)
	}
	if parsed != 3 {
		return 0, fmt.Errorf("available on socket %d: %w", id, ErrMalformedResponse)
	}
	return unread, nil
}

// CloseSocket closes the connection on the modem and frees the entry
// whatever the modem answers. A receiver blocked on the socket is woken.
func (d *Driver) CloseSocket(ctx context.Context, id int) error {
	s := d.socketAt(id)
	if s == nil {
		return fmt.Errorf("socket %d: %w", id, ErrInvalidSocket)
	}
	d.sockMu.Lock()
	defer d.sockMu.Unlock()
	if !s.acquired.Load() {
		return ErrSocketClosed
	}
	s.closing()

	err := d.closeRemote(ctx, s)
	if err != nil {
		d.log.Warnf("close socket %d: %v", id, err)
	}

	s.mu.Lock()
	s.rx.Reset()
	s.bound = false
	s.state.Store(int32(sockIdle))
	s.toBeClosed.Store(false)
	s.acquired.Store(false)
	s.mu.Unlock()
	s.signal()
	return nil
}
