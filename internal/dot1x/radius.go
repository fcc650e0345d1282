package dot1x

import (
	"crypto/hmac"
	"crypto/md5" //nolint:gosec // mandated by RFC 2865; not used for security novel to this protocol
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

// RADIUS packet codes used by the pass-through authenticator (§3).
const (
	RadiusAccessRequest      uint8 = 1
	RadiusAccessAccept       uint8 = 2
	RadiusAccessReject       uint8 = 3
	RadiusAccountingRequest  uint8 = 4
	RadiusAccountingResponse uint8 = 5
	RadiusAccessChallenge    uint8 = 11
)

// RADIUS attribute types required/recognized by §3.
const (
	AttrUserName          uint8 = 1
	AttrUserPassword      uint8 = 2
	AttrNASIPAddress      uint8 = 4
	AttrNASPort           uint8 = 5
	AttrServiceType       uint8 = 6
	AttrFramedMTU         uint8 = 12
	AttrState             uint8 = 24
	AttrCalledStationId   uint8 = 30
	AttrCallingStationId  uint8 = 31
	AttrNASIdentifier     uint8 = 32
	AttrSessionTimeout    uint8 = 27
	AttrNASPortType       uint8 = 61
	AttrEAPMessage        uint8 = 79
	AttrMessageAuth       uint8 = 80
	AttrVendorSpecific    uint8 = 26
)

// NASPortTypeEthernet is the NAS-Port-Type value Access-Requests from an
// 802.1X wired authenticator MUST carry (§6).
const NASPortTypeEthernet uint32 = 15

const (
	radiusHeaderSize  = 20 // code(1) id(1) length(2) authenticator(16)
	maxAttrValueLen   = 253
	maxRadiusPacket   = 4096 // §4.3: larger packets are truncated
	messageAuthLen    = 16
)

// RadiusAttribute is an (type, value) pair carried in a RadiusPacket.
// Unknown types are preserved as opaque bytes (§4.1).
type RadiusAttribute struct {
	Type  uint8
	Value []byte
}

// RadiusPacket is the wire-level representation described in §3:
// (code, packet_id, authenticator, attributes).
type RadiusPacket struct {
	Code          uint8
	Identifier    uint8
	Authenticator [16]byte
	Attributes    []RadiusAttribute
}

// Get returns the first attribute of the given type, if present.
func (p *RadiusPacket) Get(attrType uint8) (RadiusAttribute, bool) {
	for _, a := range p.Attributes {
		if a.Type == attrType {
			return a, true
		}
	}
	return RadiusAttribute{}, false
}

// Add appends an attribute to the packet.
func (p *RadiusPacket) Add(attrType uint8, value []byte) {
	p.Attributes = append(p.Attributes, RadiusAttribute{Type: attrType, Value: value})
}

// AddUint32 appends a 4-byte integer-valued attribute.
func (p *RadiusPacket) AddUint32(attrType uint8, v uint32) {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, v)
	p.Add(attrType, buf)
}

// AddEapMessage splits eap (an encoded EAP PDU) into ≤253-byte chunks and
// appends one EAP-Message attribute per chunk, in order (§4.1, R3).
func (p *RadiusPacket) AddEapMessage(eap []byte) {
	if len(eap) == 0 {
		p.Add(AttrEAPMessage, nil)
		return
	}
	for start := 0; start < len(eap); start += maxAttrValueLen {
		end := min(start+maxAttrValueLen, len(eap))
		p.Add(AttrEAPMessage, eap[start:end])
	}
}

// EapMessage reassembles all EAP-Message attributes' values
// into a single EAP PDU, in order (§4.1, R3). Reassembly is over *all*
// EAP-Message attributes present, not merely adjacent ones, since RADIUS
// attribute ordering for a given type is preserved end to end by both
// this codec and RFC 2865-compliant peers.
func (p *RadiusPacket) EapMessage() []byte {
	var out []byte
	for _, a := range p.Attributes {
		if a.Type == AttrEAPMessage {
			out = append(out, a.Value...)
		}
	}
	return out
}

// BuildRandomAuthenticator generates 16 cryptographically random bytes
// suitable for an Access-Request's request authenticator.
func BuildRandomAuthenticator() ([16]byte, error) {
	var auth [16]byte
	if _, err := rand.Read(auth[:]); err != nil {
		return auth, fmt.Errorf("generate request authenticator: %w", err)
	}
	return auth, nil
}

// MarshalRadius serializes a RadiusPacket to the wire, appending a trailing
// Message-Authenticator attribute computed as HMAC-MD5(secret,
// packet-with-message-authenticator-zeroed) (§4.1, I3).
//
// For Access-Request/Accounting-Request the caller supplies the request
// authenticator via reqAuth (random for Access-Request per §4.5, or
// 16 zero bytes then replaced by the computed MD5 digest for
// Accounting-Request per §4.1).
func MarshalRadius(p *RadiusPacket, secret string, reqAuth [16]byte) ([]byte, error) {
	pkt := *p
	pkt.Attributes = append(append([]RadiusAttribute(nil), p.Attributes...), RadiusAttribute{
		Type:  AttrMessageAuth,
		Value: make([]byte, messageAuthLen),
	})

	switch pkt.Code {
	case RadiusAccessRequest:
		pkt.Authenticator = reqAuth
	case RadiusAccountingRequest:
		pkt.Authenticator = [16]byte{} // zeroed for the first-pass hash
	default:
		pkt.Authenticator = reqAuth // echo request authenticator into a response
	}

	buf, err := encodeRadius(&pkt)
	if err != nil {
		return nil, err
	}

	// Message-Authenticator = HMAC-MD5(secret, packet with the
	// Message-Authenticator value zeroed, which it already is above).
	maOffset := len(buf) - messageAuthLen
	mac := hmac.New(md5.New, []byte(secret))
	mac.Write(buf)
	digest := mac.Sum(nil)
	copy(buf[maOffset:], digest)

	switch pkt.Code {
	case RadiusAccountingRequest:
		h := md5.New() //nolint:gosec // RFC 2865 §3 mandates MD5 here
		h.Write(buf[0:4])
		h.Write(make([]byte, 16))
		h.Write(buf[radiusHeaderSize:])
		h.Write([]byte(secret))
		digest := h.Sum(nil)
		copy(buf[4:20], digest)
		p.Authenticator = [16]byte(digest)
	case RadiusAccessRequest:
		p.Authenticator = reqAuth
	default:
		h := md5.New() //nolint:gosec // RFC 2865 §3 mandates MD5 here
		h.Write(buf[0:4])
		h.Write(reqAuth[:])
		h.Write(buf[radiusHeaderSize:])
		h.Write([]byte(secret))
		digest := h.Sum(nil)
		copy(buf[4:20], digest)
		p.Authenticator = [16]byte(digest)
	}

	if len(buf) > maxRadiusPacket {
		return nil, fmt.Errorf("radius packet %d bytes exceeds %d: %w", len(buf), maxRadiusPacket, ErrBadLength)
	}
	return buf, nil
}

func encodeRadius(p *RadiusPacket) ([]byte, error) {
	length := radiusHeaderSize
	for _, a := range p.Attributes {
		length += 2 + len(a.Value)
	}
	if length > 0xFFFF {
		return nil, fmt.Errorf("radius packet length %d: %w", length, ErrBadLength)
	}

	buf := make([]byte, length)
	buf[0] = p.Code
	buf[1] = p.Identifier
	binary.BigEndian.PutUint16(buf[2:4], uint16(length))
	copy(buf[4:20], p.Authenticator[:])

	idx := radiusHeaderSize
	for _, a := range p.Attributes {
		if len(a.Value) > maxAttrValueLen {
			return nil, fmt.Errorf("attribute %d value %d bytes: %w", a.Type, len(a.Value), ErrBadLength)
		}
		buf[idx] = a.Type
		buf[idx+1] = uint8(2 + len(a.Value))
		copy(buf[idx+2:], a.Value)
		idx += 2 + len(a.Value)
	}
	return buf, nil
}

// UnmarshalRadius parses a RADIUS packet, validating its authenticator
// against secret. For non-request codes reqAuth must be the request
// authenticator of the matching Access-Request/Accounting-Request, looked
// up by the caller via PacketIdAllocator (§4.1). On mismatch, returns
// ErrAuthMismatch wrapped as a KindCrypto Error (§7): the caller MUST drop
// the packet and not answer. A Message-Authenticator attribute is parsed
// like any other attribute; its HMAC is not verified.
func UnmarshalRadius(buf []byte, secret string, reqAuth [16]byte) (*RadiusPacket, error) {
	if len(buf) > maxRadiusPacket {
		buf = buf[:maxRadiusPacket]
	}
	if len(buf) < radiusHeaderSize {
		return nil, fmt.Errorf("radius packet %d bytes: %w", len(buf), ErrShortFrame)
	}

	length := binary.BigEndian.Uint16(buf[2:4])
	if int(length) > len(buf) || int(length) < radiusHeaderSize {
		return nil, fmt.Errorf("radius length %d vs buf %d: %w", length, len(buf), ErrBadLength)
	}
	buf = buf[:length]

	p := &RadiusPacket{Code: buf[0], Identifier: buf[1]}
	copy(p.Authenticator[:], buf[4:20])

	attrs, err := decodeAttributes(buf[radiusHeaderSize:])
	if err != nil {
		return nil, err
	}
	p.Attributes = attrs

	if err := validateAuthenticator(buf, p.Code, secret, reqAuth); err != nil {
		return nil, Classify(KindCrypto, err)
	}

	return p, nil
}

func decodeAttributes(buf []byte) ([]RadiusAttribute, error) {
	var attrs []RadiusAttribute
	for len(buf) > 0 {
		if len(buf) < 2 {
			return nil, fmt.Errorf("attribute header: %w", ErrUnknownAttribute)
		}
		attrType := buf[0]
		attrLen := int(buf[1])
		if attrLen < 2 || attrLen > len(buf) {
			return nil, fmt.Errorf("attribute %d length %d vs remaining %d: %w", attrType, attrLen, len(buf), ErrUnknownAttribute)
		}
		attrs = append(attrs, RadiusAttribute{Type: attrType, Value: append([]byte(nil), buf[2:attrLen]...)})
		buf = buf[attrLen:]
	}
	return attrs, nil
}

func validateAuthenticator(buf []byte, code uint8, secret string, reqAuth [16]byte) error {
	var expected [16]byte

	switch code {
	case RadiusAccessRequest:
		// Request authenticators are opaque/random on ingress; nothing
		// to validate against the shared secret for requests.
		return nil
	case RadiusAccountingRequest:
		h := md5.New() //nolint:gosec // RFC 2865 §3 mandates MD5 here
		h.Write(buf[0:4])
		h.Write(make([]byte, 16))
		h.Write(buf[radiusHeaderSize:])
		h.Write([]byte(secret))
		copy(expected[:], h.Sum(nil))
	default:
		h := md5.New() //nolint:gosec // RFC 2865 §3 mandates MD5 here
		h.Write(buf[0:4])
		h.Write(reqAuth[:])
		h.Write(buf[radiusHeaderSize:])
		h.Write([]byte(secret))
		copy(expected[:], h.Sum(nil))
	}

	var actual [16]byte
	copy(actual[:], buf[4:20])
	if !hmac.Equal(expected[:], actual[:]) {
		return fmt.Errorf("response authenticator: %w", ErrAuthMismatch)
	}
	return nil
}

// EncodeUserPassword implements the RFC 2865 §5.2 block cipher: the
// password is padded to a multiple of 16 bytes and XORed, in 16-byte
// blocks, against successive MD5(secret || previous-ciphertext-block)
// digests (the first block uses the request authenticator in place of a
// previous ciphertext block).
func EncodeUserPassword(password, secret string, reqAuth [16]byte) []byte {
	pwd := []byte(password)
	padLen := (len(pwd) + 15) / 16 * 16
	if padLen == 0 {
		padLen = 16
	}
	padded := make([]byte, padLen)
	copy(padded, pwd)

	out := make([]byte, padLen)
	prev := reqAuth[:]
	for start := 0; start < padLen; start += 16 {
		h := md5.New() //nolint:gosec // RFC 2865 §5.2 mandates MD5 here
		h.Write([]byte(secret))
		h.Write(prev)
		b := h.Sum(nil)

		block := out[start : start+16]
		for i := range 16 {
			block[i] = padded[start+i] ^ b[i]
		}
		prev = block
	}
	return out
}
