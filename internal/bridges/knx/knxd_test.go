package knx

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"
)

// fakeKNXD accepts a single group-socket client on a loopback port.
type fakeKNXD struct {
	listener net.Listener
	accepted chan acceptedConn
}

type acceptedConn struct {
	conn    net.Conn
	request []byte
}

// newFakeKNXD starts a server that answers the EIB_OPEN_GROUPCON request
// with a message of type reply.
func newFakeKNXD(t *testing.T, reply uint16) *fakeKNXD {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to create listener: %v", err)
	}

	s := &fakeKNXD{
		listener: ln,
		accepted: make(chan acceptedConn, 1),
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		req := make([]byte, 7)
		if _, err := io.ReadFull(conn, req); err != nil {
			conn.Close()
			return
		}
		conn.Write(EncodeKNXDMessage(reply, nil))
		s.accepted <- acceptedConn{conn: conn, request: req}
	}()

	return s
}

func (s *fakeKNXD) Address() string {
	return s.listener.Addr().String()
}

// Accept returns the server side of the client connection.
func (s *fakeKNXD) Accept(t *testing.T) acceptedConn {
	t.Helper()
	select {
	case a := <-s.accepted:
		t.Cleanup(func() { a.conn.Close() })
		return a
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for client connection")
		return acceptedConn{}
	}
}

func dialFake(t *testing.T, s *fakeKNXD) (*Conn, acceptedConn) {
	t.Helper()
	c, err := Dial(context.Background(), s.Address(), 2*time.Second)
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c, s.Accept(t)
}

func TestDialOpensGroupCon(t *testing.T) {
	server := newFakeKNXD(t, EIBOpenGroupCon)
	_, peer := dialFake(t, server)

	want := EncodeKNXDMessage(EIBOpenGroupCon, []byte{0x00, 0x00, 0x00})
	if !bytes.Equal(peer.request, want) {
		t.Errorf("open request = %X, want %X", peer.request, want)
	}
}

func TestDialRejectedHandshake(t *testing.T) {
	server := newFakeKNXD(t, EIBClose)

	_, err := Dial(context.Background(), server.Address(), 2*time.Second)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Fatalf("Dial() error = %v, want ErrConnectionFailed", err)
	}
}

func TestDialUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to create listener: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	_, err = Dial(context.Background(), addr, 500*time.Millisecond)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Fatalf("Dial() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnReceive(t *testing.T) {
	server := newFakeKNXD(t, EIBOpenGroupCon)
	c, peer := dialFake(t, server)

	want := Telegram{
		Source:      "1.1.5",
		Destination: GroupAddress{Main: 1, Middle: 1, Sub: 1},
		APCI:        APCIWrite,
		Data:        EncodeDPT14(16),
	}

	// An unrelated knxd message and a truncated group packet are skipped.
	peer.conn.Write(EncodeKNXDMessage(0x0025, []byte{0x01}))
	peer.conn.Write(EncodeKNXDMessage(EIBGroupPacket, []byte{0x11, 0x05}))
	peer.conn.Write(EncodeKNXDMessage(EIBGroupPacket, want.EncodeGroupPacket()))

	got, err := c.Receive()
	if err != nil {
		t.Fatalf("Receive() error: %v", err)
	}
	if got.Source != want.Source || got.Destination != want.Destination || got.APCI != want.APCI {
		t.Errorf("Receive() = %v, want %v", got, want)
	}
	if !bytes.Equal(got.Data, want.Data) {
		t.Errorf("Data = %X, want %X", got.Data, want.Data)
	}
}

func TestConnReceiveConnectionLost(t *testing.T) {
	server := newFakeKNXD(t, EIBOpenGroupCon)
	c, peer := dialFake(t, server)

	peer.conn.Close()

	_, err := c.Receive()
	if !errors.Is(err, ErrConnectionLost) {
		t.Fatalf("Receive() error = %v, want ErrConnectionLost", err)
	}
}

func TestConnReceiveOversizedFrame(t *testing.T) {
	server := newFakeKNXD(t, EIBOpenGroupCon)
	c, peer := dialFake(t, server)

	peer.conn.Write([]byte{0x02, 0x00, 0x00, 0x27})

	_, err := c.Receive()
	if !errors.Is(err, ErrProtocolDesync) {
		t.Fatalf("Receive() error = %v, want ErrProtocolDesync", err)
	}
	if !errors.Is(err, ErrConnectionLost) {
		t.Errorf("Receive() error = %v, want ErrConnectionLost", err)
	}
}

func TestConnCloseSendsEIBClose(t *testing.T) {
	server := newFakeKNXD(t, EIBOpenGroupCon)
	c, peer := dialFake(t, server)

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close() error: %v", err)
	}

	peer.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 4)
	if _, err := io.ReadFull(peer.conn, buf); err != nil {
		t.Fatalf("reading close message: %v", err)
	}
	if !bytes.Equal(buf, EncodeKNXDMessage(EIBClose, nil)) {
		t.Errorf("close message = %X", buf)
	}
}

func TestConnCloseUnblocksReceive(t *testing.T) {
	server := newFakeKNXD(t, EIBOpenGroupCon)
	c, _ := dialFake(t, server)

	errCh := make(chan error, 1)
	go func() {
		_, err := c.Receive()
		errCh <- err
	}()

	time.Sleep(50 * time.Millisecond)
	c.Close()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrConnectionLost) {
			t.Errorf("Receive() error = %v, want ErrConnectionLost", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Receive() did not return after Close")
	}
}
