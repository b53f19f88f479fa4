// Package mqtttest provides an in-process MQTT broker for tests.
//
// The broker speaks just enough MQTT 3.1.1 for the status publisher:
// CONNECT/CONNACK, QoS 0 PUBLISH, PINGREQ and DISCONNECT.
package mqtttest

import (
	"net"
	"strconv"
	"sync"
	"testing"

	"github.com/eclipse/paho.mqtt.golang/packets"
)

// Message is a PUBLISH received by the broker.
type Message struct {
	ClientID string
	Topic    string
	Payload  []byte
}

// Broker is a loopback MQTT broker. Create it with NewBroker.
type Broker struct {
	listener net.Listener

	mu         sync.Mutex
	returnCode byte
	connects   []*packets.ConnectPacket
	messages   []Message
	conns      map[net.Conn]struct{}

	// Received is signalled (non-blocking) after each stored PUBLISH.
	Received chan struct{}
}

// NewBroker starts a broker on 127.0.0.1 and stops it when the test ends.
func NewBroker(t testing.TB) *Broker {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("mqtttest: listen: %v", err)
	}

	b := &Broker{
		listener:   ln,
		returnCode: packets.Accepted,
		conns:      make(map[net.Conn]struct{}),
		Received:   make(chan struct{}, 64),
	}
	go b.acceptLoop()
	t.Cleanup(b.Close)

	return b
}

// Host returns the broker IP.
func (b *Broker) Host() string {
	return b.listener.Addr().(*net.TCPAddr).IP.String()
}

// Port returns the broker TCP port.
func (b *Broker) Port() int {
	return b.listener.Addr().(*net.TCPAddr).Port
}

// Address returns host:port.
func (b *Broker) Address() string {
	return net.JoinHostPort(b.Host(), strconv.Itoa(b.Port()))
}

// Refuse makes later CONNECTs fail with the given CONNACK return code,
// e.g. packets.ErrRefusedNotAuthorised.
func (b *Broker) Refuse(code byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.returnCode = code
}

// Connects returns the CONNECT packets received so far.
func (b *Broker) Connects() []*packets.ConnectPacket {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*packets.ConnectPacket(nil), b.connects...)
}

// Messages returns the PUBLISH messages received so far, in arrival order.
func (b *Broker) Messages() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Message(nil), b.messages...)
}

// Close stops accepting and drops every client connection.
func (b *Broker) Close() {
	b.listener.Close()

	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.conns {
		c.Close()
	}
}

func (b *Broker) acceptLoop() {
	for {
		conn, err := b.listener.Accept()
		if err != nil {
			return
		}
		b.mu.Lock()
		b.conns[conn] = struct{}{}
		b.mu.Unlock()
		go b.serve(conn)
	}
}

func (b *Broker) serve(conn net.Conn) {
	defer func() {
		b.mu.Lock()
		delete(b.conns, conn)
		b.mu.Unlock()
		conn.Close()
	}()

	var clientID string
	for {
		cp, err := packets.ReadPacket(conn)
		if err != nil {
			return
		}

		switch p := cp.(type) {
		case *packets.ConnectPacket:
			clientID = p.ClientIdentifier
			b.mu.Lock()
			b.connects = append(b.connects, p)
			code := b.returnCode
			b.mu.Unlock()

			ack := packets.NewControlPacket(packets.Connack).(*packets.ConnackPacket)
			ack.ReturnCode = code
			if err := ack.Write(conn); err != nil || code != packets.Accepted {
				return
			}

		case *packets.PublishPacket:
			b.mu.Lock()
			b.messages = append(b.messages, Message{
				ClientID: clientID,
				Topic:    p.TopicName,
				Payload:  append([]byte(nil), p.Payload...),
			})
			b.mu.Unlock()
			select {
			case b.Received <- struct{}{}:
			default:
			}

		case *packets.PingreqPacket:
			if err := packets.NewControlPacket(packets.Pingresp).Write(conn); err != nil {
				return
			}

		case *packets.DisconnectPacket:
			return
		}
	}
}
