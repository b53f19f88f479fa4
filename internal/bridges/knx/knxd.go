package knx

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// Default timeouts for knxd communication.
const (
	// defaultConnectTimeout bounds dial plus the groupcon handshake.
	defaultConnectTimeout = 10 * time.Second

	// defaultWriteTimeout is the timeout for write operations.
	defaultWriteTimeout = 5 * time.Second

	// readBufferSize is the size of the read buffer for incoming messages.
	readBufferSize = 256
)

// Session is a live group-socket connection delivering telegrams.
// *Conn implements it; tests substitute fakes.
type Session interface {
	// Receive blocks until the next group telegram arrives.
	Receive() (Telegram, error)

	// Close releases the connection. Safe to call more than once.
	Close() error
}

// Ensure Conn implements Session.
var _ Session = (*Conn)(nil)

// Conn is a knxd connection in group communication mode.
//
// Receive must only be called from one goroutine at a time. Close may be
// called from any goroutine and unblocks a pending Receive.
type Conn struct {
	conn net.Conn
	buf  []byte

	closeOnce sync.Once
	closeErr  error
}

// Dial connects to knxd at address ("host:port") and opens group
// communication mode.
//
// The timeout bounds both the TCP dial and the EIB_OPEN_GROUPCON handshake.
// A zero timeout uses defaultConnectTimeout.
//
// Returns:
//   - *Conn: Connected and ready to Receive
//   - error: ErrConnectionFailed wrapping the dial or handshake failure
func Dial(ctx context.Context, address string, timeout time.Duration) (*Conn, error) {
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var dialer net.Dialer
	nc, err := dialer.DialContext(dialCtx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", ErrConnectionFailed, address, err)
	}

	c := &Conn{
		conn: nc,
		buf:  make([]byte, readBufferSize),
	}

	if err := c.openGroupCon(dialCtx); err != nil {
		nc.Close()
		return nil, fmt.Errorf("%w: handshake failed: %w", ErrConnectionFailed, err)
	}

	// The handshake used deadlines; telegram reads block until data or Close.
	if err := nc.SetDeadline(time.Time{}); err != nil {
		nc.Close()
		return nil, fmt.Errorf("%w: clear deadline: %w", ErrConnectionFailed, err)
	}

	return c, nil
}

// openGroupCon sends EIB_OPEN_GROUPCON and waits for knxd to echo it.
//
// Payload: reserved(1) + write_only(1) + reserved(1). write_only=0x00 keeps
// the socket bidirectional so group writes from the bus are delivered.
func (c *Conn) openGroupCon(ctx context.Context) error {
	deadline := time.Now().Add(defaultWriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("set deadline: %w", err)
	}

	msg := EncodeKNXDMessage(EIBOpenGroupCon, []byte{0x00, 0x00, 0x00})
	if _, err := c.conn.Write(msg); err != nil {
		return fmt.Errorf("write: %w", err)
	}

	msgType, _, err := c.readMessage()
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if msgType != EIBOpenGroupCon {
		return fmt.Errorf("unexpected response type: 0x%04X", msgType)
	}

	return nil
}

// Receive blocks until the next group telegram arrives.
//
// Non-group knxd messages and group packets too short to parse are skipped.
// Any read failure or framing error is returned wrapped in ErrConnectionLost;
// the connection is unusable afterwards.
func (c *Conn) Receive() (Telegram, error) {
	for {
		msgType, payload, err := c.readMessage()
		if err != nil {
			return Telegram{}, fmt.Errorf("%w: %w", ErrConnectionLost, err)
		}

		if msgType != EIBGroupPacket || len(payload) < groupPacketHeaderSize {
			continue
		}

		t, err := ParseTelegram(payload)
		if err != nil {
			continue
		}
		return t, nil
	}
}

// readMessage reads a single framed knxd message.
//
// An undersized or oversized frame returns ErrProtocolDesync: the stream
// cannot be re-synchronised without closing the connection.
func (c *Conn) readMessage() (uint16, []byte, error) {
	if _, err := io.ReadFull(c.conn, c.buf[:2]); err != nil {
		return 0, nil, fmt.Errorf("read size: %w", err)
	}

	msgSize := binary.BigEndian.Uint16(c.buf[:2])
	if msgSize < 2 {
		return 0, nil, fmt.Errorf("%w: message size %d", ErrProtocolDesync, msgSize)
	}

	totalLen := 2 + int(msgSize)
	if totalLen > len(c.buf) {
		return 0, nil, fmt.Errorf("%w: message size %d exceeds buffer %d", ErrProtocolDesync, totalLen, len(c.buf))
	}

	if _, err := io.ReadFull(c.conn, c.buf[2:totalLen]); err != nil {
		return 0, nil, fmt.Errorf("read message: %w", err)
	}

	return ParseKNXDMessage(c.buf[:totalLen])
}

// Close sends EIB_CLOSE (best-effort) and closes the socket.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		_ = c.conn.SetWriteDeadline(time.Now().Add(defaultWriteTimeout))
		_, _ = c.conn.Write(EncodeKNXDMessage(EIBClose, nil))
		if err := c.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			c.closeErr = err
		}
	})
	return c.closeErr
}
