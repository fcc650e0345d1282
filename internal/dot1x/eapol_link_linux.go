//go:build linux

package dot1x

import (
	"context"
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// rawEapolLink is the real AF_PACKET implementation of EapolLink: a raw
// socket bound to one interface, joined to the PAE group multicast address
// instead of a UDP destination, filtering on EtherType rather than port.
type rawEapolLink struct {
	fd      int
	ifIndex int
	ifName  string
}

// NewRawEapolLink opens an AF_PACKET/SOCK_RAW socket bound to ifName,
// filtered to EtherTypeEAPOL, and joined to the PAE group address
// 01:80:C2:00:00:03 (§4.2, §6).
func NewRawEapolLink(ifName string) (EapolLink, error) {
	iface, err := net.InterfaceByName(ifName)
	if err != nil {
		return nil, Classify(KindFatal, fmt.Errorf("lookup interface %s: %w", ifName, err))
	}

	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, htons(EtherTypeEAPOL))
	if err != nil {
		return nil, Classify(KindFatal, fmt.Errorf("open raw socket: %w", err))
	}

	addr := unix.SockaddrLinklayer{
		Protocol: htons(EtherTypeEAPOL),
		Ifindex:  iface.Index,
	}
	if err := unix.Bind(fd, &addr); err != nil {
		_ = unix.Close(fd)
		return nil, Classify(KindFatal, fmt.Errorf("bind to %s: %w", ifName, err))
	}

	mreq := unix.PacketMreq{
		Ifindex: int32(iface.Index), //nolint:gosec // interface indices fit in int32
		Type:    unix.PACKET_MR_MULTICAST,
		Alen:    6,
	}
	copy(mreq.Address[:], PAEGroupAddr[:])
	if err := unix.SetsockoptPacketMreq(fd, unix.SOL_PACKET, unix.PACKET_ADD_MEMBERSHIP, &mreq); err != nil {
		_ = unix.Close(fd)
		return nil, Classify(KindFatal, fmt.Errorf("join PAE group on %s: %w", ifName, err))
	}

	return &rawEapolLink{fd: fd, ifIndex: iface.Index, ifName: ifName}, nil
}

func (l *rawEapolLink) Send(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	addr := unix.SockaddrLinklayer{Ifindex: l.ifIndex, Halen: 6}
	copy(addr.Addr[:], frame[0:6])
	return unix.Sendto(l.fd, frame, 0, &addr)
}

func (l *rawEapolLink) Receive(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	buf := GetPacketBuf()
	defer PutPacketBuf(buf)
	n, _, err := unix.Recvfrom(l.fd, *buf, 0)
	if err != nil {
		return nil, fmt.Errorf("recv from %s: %w", l.ifName, err)
	}
	out := make([]byte, n)
	copy(out, (*buf)[:n])
	return out, nil
}

func (l *rawEapolLink) Close() error {
	return unix.Close(l.fd)
}

func htons(v uint16) uint16 {
	return (v<<8)&0xff00 | (v>>8)&0x00ff
}
