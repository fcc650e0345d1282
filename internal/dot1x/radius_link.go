package dot1x

import (
	"context"
	"fmt"
	"net"
)

// Default RADIUS ports (§6).
const (
	RadiusAuthPort uint16 = 1812
	RadiusAcctPort uint16 = 1813
)

// RadiusLink is one UDP socket bound to (listen_ip, ephemeral_port),
// talking to one RADIUS server's auth and accounting ports (§4.3), using
// the usual PacketConn-over-UDP idiom collapsed to the single-peer
// send_auth/send_acct/receive contract §4.3 specifies.
type RadiusLink interface {
	SendAuth(ctx context.Context, buf []byte) error
	SendAcct(ctx context.Context, buf []byte) error
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

// udpRadiusLink is the real UDP implementation.
type udpRadiusLink struct {
	conn     *net.UDPConn
	authAddr *net.UDPAddr
	acctAddr *net.UDPAddr
}

// NewUDPRadiusLink opens a UDP socket on listenAddr and targets serverIP at
// authPort/acctPort (defaulting to 1812/1813 when zero).
func NewUDPRadiusLink(listenAddr, serverIP string, authPort, acctPort uint16) (RadiusLink, error) {
	if authPort == 0 {
		authPort = RadiusAuthPort
	}
	if acctPort == 0 {
		acctPort = RadiusAcctPort
	}

	laddr, err := net.ResolveUDPAddr("udp", listenAddr)
	if err != nil {
		return nil, Classify(KindFatal, fmt.Errorf("resolve listen addr %s: %w", listenAddr, err))
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, Classify(KindFatal, fmt.Errorf("bind radius socket %s: %w", listenAddr, err))
	}

	authAddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", serverIP, authPort))
	if err != nil {
		_ = conn.Close()
		return nil, Classify(KindFatal, fmt.Errorf("resolve radius auth addr: %w", err))
	}
	acctAddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", serverIP, acctPort))
	if err != nil {
		_ = conn.Close()
		return nil, Classify(KindFatal, fmt.Errorf("resolve radius acct addr: %w", err))
	}

	return &udpRadiusLink{conn: conn, authAddr: authAddr, acctAddr: acctAddr}, nil
}

func (l *udpRadiusLink) SendAuth(ctx context.Context, buf []byte) error {
	return l.send(ctx, buf, l.authAddr)
}

func (l *udpRadiusLink) SendAcct(ctx context.Context, buf []byte) error {
	return l.send(ctx, buf, l.acctAddr)
}

func (l *udpRadiusLink) send(ctx context.Context, buf []byte, addr *net.UDPAddr) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := l.conn.WriteToUDP(buf, addr)
	return err
}

func (l *udpRadiusLink) Receive(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	buf := GetPacketBuf()
	defer PutPacketBuf(buf)
	n, _, err := l.conn.ReadFromUDP(*buf)
	if err != nil {
		return nil, fmt.Errorf("radius recv: %w", err)
	}
	if n > maxRadiusPacket {
		n = maxRadiusPacket
	}
	out := make([]byte, n)
	copy(out, (*buf)[:n])
	return out, nil
}

func (l *udpRadiusLink) Close() error {
	return l.conn.Close()
}

// MockRadiusLink is an in-memory, channel-backed RadiusLink for tests.
type MockRadiusLink struct {
	Inbound   chan []byte
	AuthSent  chan []byte
	AcctSent  chan []byte
	closed    chan struct{}
}

// NewMockRadiusLink creates a MockRadiusLink with the given channel capacity.
func NewMockRadiusLink(capacity int) *MockRadiusLink {
	return &MockRadiusLink{
		Inbound:  make(chan []byte, capacity),
		AuthSent: make(chan []byte, capacity),
		AcctSent: make(chan []byte, capacity),
		closed:   make(chan struct{}),
	}
}

func (m *MockRadiusLink) SendAuth(ctx context.Context, buf []byte) error {
	return send(ctx, m.AuthSent, m.closed, buf)
}

func (m *MockRadiusLink) SendAcct(ctx context.Context, buf []byte) error {
	return send(ctx, m.AcctSent, m.closed, buf)
}

func send(ctx context.Context, ch chan []byte, closed chan struct{}, buf []byte) error {
	select {
	case ch <- append([]byte(nil), buf...):
		return nil
	case <-closed:
		return fmt.Errorf("radius send: %w", ErrLinkClosed)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *MockRadiusLink) Receive(ctx context.Context) ([]byte, error) {
	select {
	case buf := <-m.Inbound:
		return buf, nil
	case <-m.closed:
		return nil, fmt.Errorf("radius receive: %w", ErrLinkClosed)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *MockRadiusLink) Close() error {
	select {
	case <-m.closed:
	default:
		close(m.closed)
	}
	return nil
}
