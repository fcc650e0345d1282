package dot1x

import (
	"encoding/binary"
	"fmt"
)

// EAP codes (RFC 3748 §4.1).
const (
	EapCodeRequest  uint8 = 1
	EapCodeResponse uint8 = 2
	EapCodeSuccess  uint8 = 3
	EapCodeFailure  uint8 = 4
)

// EAP method types (RFC 3748 §5) relevant to pass-through relaying.
const (
	EapTypeIdentity     uint8 = 1
	EapTypeNotification uint8 = 2
	EapTypeLegacyNak    uint8 = 3
	EapTypeMd5Challenge uint8 = 4
	EapTypeTLS          uint8 = 13
	EapTypeExpanded     uint8 = 254
)

const eapHeaderSize = 4 // code(1) id(1) length(2)

// MessageKind tags the variant an EapMessage carries. EapolStart and
// EapolLogoff are synthesized by the codec from EAPOL-Start/EAPOL-Logoff
// frames that carry no EAP PDU; they exist purely as state-machine triggers.
type MessageKind uint8

const (
	KindEapolStart MessageKind = iota
	KindEapolLogoff
	KindIdentity
	KindMd5Challenge
	KindLegacyNak
	KindTlsMessage
	KindSuccess
	KindFailure
	KindGeneric
)

func (k MessageKind) String() string {
	names := [...]string{
		"EapolStart", "EapolLogoff", "Identity", "Md5Challenge",
		"LegacyNak", "TlsMessage", "Success", "Failure", "Generic",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return fmt.Sprintf("MessageKind(%d)", uint8(k))
}

// EapMessage is the tagged variant §3 describes: a parsed EAP PDU (or a
// synthetic EAPOL-Start/Logoff trigger), always remembering the source MAC
// it arrived from/is destined to and the raw encoded bytes of unknown
// methods so an unrecognized type can still be relayed and integrity-checked
// byte for byte.
type EapMessage struct {
	Kind MessageKind
	Src  MacAddress
	ID   uint8  // message_id; meaningless for EapolStart/EapolLogoff
	Code uint8  // EapCodeRequest/Response/Success/Failure
	Type uint8  // EAP type, valid only when Code is Request or Response
	Identity string // valid only for KindIdentity

	// Raw holds the exact encoded EAP PDU bytes (code..type-data) as
	// received, or as last built by MarshalEap, so that a retransmission
	// (I5) and an unknown-method relay are always byte-identical.
	Raw []byte
}

// NewEapolStart synthesizes the EapolStart trigger message.
func NewEapolStart(src MacAddress) EapMessage {
	return EapMessage{Kind: KindEapolStart, Src: src}
}

// NewEapolLogoff synthesizes the EapolLogoff trigger message.
func NewEapolLogoff(src MacAddress) EapMessage {
	return EapMessage{Kind: KindEapolLogoff, Src: src}
}

// NewIdentityRequest builds an EAP-Request/Identity PDU with the given
// message_id and encodes it into Raw.
func NewIdentityRequest(id uint8) EapMessage {
	m := EapMessage{Kind: KindIdentity, Code: EapCodeRequest, Type: EapTypeIdentity, ID: id}
	m.Raw = MarshalEap(m)
	return m
}

// NewSuccess builds an EAP-Success PDU.
func NewSuccess(id uint8) EapMessage {
	m := EapMessage{Kind: KindSuccess, Code: EapCodeSuccess, ID: id}
	m.Raw = MarshalEap(m)
	return m
}

// NewFailure builds an EAP-Failure PDU.
func NewFailure(id uint8) EapMessage {
	m := EapMessage{Kind: KindFailure, Code: EapCodeFailure, ID: id}
	m.Raw = MarshalEap(m)
	return m
}

// MarshalEap serializes an EapMessage into an EAP PDU: code(1) id(1)
// length(2) [type(1) type-data(...)]. EapolStart/EapolLogoff have no wire
// representation and MarshalEap returns nil for them.
func MarshalEap(m EapMessage) []byte {
	switch m.Kind {
	case KindEapolStart, KindEapolLogoff:
		return nil
	}

	if m.Code == EapCodeSuccess || m.Code == EapCodeFailure {
		buf := make([]byte, eapHeaderSize)
		buf[0] = m.Code
		buf[1] = m.ID
		binary.BigEndian.PutUint16(buf[2:4], eapHeaderSize)
		return buf
	}

	if m.Kind == KindIdentity && m.Code == EapCodeRequest {
		idBytes := []byte(m.Identity)
		total := eapHeaderSize + 1 + len(idBytes)
		buf := make([]byte, total)
		buf[0] = m.Code
		buf[1] = m.ID
		binary.BigEndian.PutUint16(buf[2:4], uint16(total))
		buf[4] = EapTypeIdentity
		copy(buf[5:], idBytes)
		return buf
	}

	// Generic/unknown methods and Responses: Raw is authoritative,
	// preserved verbatim from whatever parsed it (round-trip law R1).
	if len(m.Raw) > 0 {
		return append([]byte(nil), m.Raw...)
	}

	total := eapHeaderSize + 1
	buf := make([]byte, total)
	buf[0] = m.Code
	buf[1] = m.ID
	binary.BigEndian.PutUint16(buf[2:4], uint16(total))
	buf[4] = m.Type
	return buf
}

// UnmarshalEap parses an EAP PDU (as carried inside an EAPOL EAP-Packet or
// reassembled from RADIUS EAP-Message attributes) into an EapMessage. Raw
// preserves the exact input bytes so unknown methods can be relayed and
// retransmissions stay byte-identical (R1, I5).
func UnmarshalEap(buf []byte, src MacAddress) (EapMessage, error) {
	if len(buf) < eapHeaderSize {
		return EapMessage{}, fmt.Errorf("eap pdu: %d bytes: %w", len(buf), ErrShortFrame)
	}

	code := buf[0]
	id := buf[1]
	length := binary.BigEndian.Uint16(buf[2:4])
	if int(length) > len(buf) || int(length) < eapHeaderSize {
		return EapMessage{}, fmt.Errorf("eap pdu length %d vs buf %d: %w", length, len(buf), ErrBadLength)
	}
	buf = buf[:length]

	m := EapMessage{Src: src, Code: code, ID: id, Raw: append([]byte(nil), buf...)}

	switch code {
	case EapCodeSuccess:
		m.Kind = KindSuccess
		return m, nil
	case EapCodeFailure:
		m.Kind = KindFailure
		return m, nil
	case EapCodeRequest, EapCodeResponse:
		if length < eapHeaderSize+1 {
			return EapMessage{}, fmt.Errorf("eap request/response missing type: %w", ErrBadLength)
		}
		m.Type = buf[4]
		switch m.Type {
		case EapTypeIdentity:
			m.Kind = KindIdentity
			m.Identity = string(buf[5:])
		case EapTypeMd5Challenge:
			m.Kind = KindMd5Challenge
		case EapTypeLegacyNak:
			m.Kind = KindLegacyNak
		case EapTypeTLS:
			m.Kind = KindTlsMessage
		default:
			m.Kind = KindGeneric
		}
		return m, nil
	default:
		return EapMessage{}, fmt.Errorf("eap code %d: %w", code, ErrUnknownEapCode)
	}
}
