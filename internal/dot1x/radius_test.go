package dot1x_test

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"

	"github.com/dantte-lp/gobfd/internal/dot1x"
)

const testSecret = "testing123"

// TestRadiusAccessRequestRoundTrip verifies that an Access-Request built,
// marshaled, and then unmarshaled by a peer with the same secret parses
// back with matching attributes and a valid Message-Authenticator.
func TestRadiusAccessRequestRoundTrip(t *testing.T) {
	t.Parallel()

	var reqAuth [16]byte
	if _, err := rand.Read(reqAuth[:]); err != nil {
		t.Fatalf("rand: %v", err)
	}

	p := &dot1x.RadiusPacket{Code: dot1x.RadiusAccessRequest, Identifier: 42}
	p.Add(dot1x.AttrUserName, []byte("alice"))
	p.AddUint32(dot1x.AttrNASPortType, dot1x.NASPortTypeEthernet)
	p.AddEapMessage([]byte{dot1x.EapCodeResponse, 1, 0, 9, dot1x.EapTypeIdentity, 'a', 'l', 'i', 'c'})

	buf, err := dot1x.MarshalRadius(p, testSecret, reqAuth)
	if err != nil {
		t.Fatalf("MarshalRadius: %v", err)
	}

	parsed, err := dot1x.UnmarshalRadius(buf, testSecret, reqAuth)
	if err != nil {
		t.Fatalf("UnmarshalRadius: %v", err)
	}

	if parsed.Code != dot1x.RadiusAccessRequest {
		t.Errorf("Code = %d, want RadiusAccessRequest", parsed.Code)
	}
	if parsed.Identifier != 42 {
		t.Errorf("Identifier = %d, want 42", parsed.Identifier)
	}

	name, ok := parsed.Get(dot1x.AttrUserName)
	if !ok {
		t.Fatal("User-Name attribute missing")
	}
	if string(name.Value) != "alice" {
		t.Errorf("User-Name = %q, want %q", name.Value, "alice")
	}

	wantEap := []byte{dot1x.EapCodeResponse, 1, 0, 9, dot1x.EapTypeIdentity, 'a', 'l', 'i', 'c'}
	if got := parsed.EapMessage(); !bytes.Equal(got, wantEap) {
		t.Errorf("EapMessage() = %x, want %x", got, wantEap)
	}
}

// TestRadiusEapMessageFragmentation verifies R3: an EAP PDU longer than 253
// bytes is split across multiple EAP-Message attributes on marshal and
// reassembled byte-identically on EapMessage().
func TestRadiusEapMessageFragmentation(t *testing.T) {
	t.Parallel()

	eap := make([]byte, 600)
	for i := range eap {
		eap[i] = byte(i)
	}

	p := &dot1x.RadiusPacket{Code: dot1x.RadiusAccessRequest, Identifier: 1}
	p.AddEapMessage(eap)

	count := 0
	for _, a := range p.Attributes {
		if a.Type == dot1x.AttrEAPMessage {
			count++
			if len(a.Value) > 253 {
				t.Errorf("fragment length %d exceeds 253", len(a.Value))
			}
		}
	}
	if count != 3 {
		t.Errorf("fragment count = %d, want 3 (600 bytes / 253)", count)
	}

	if got := p.EapMessage(); !bytes.Equal(got, eap) {
		t.Error("reassembled EAP message does not match original")
	}
}

// TestRadiusAccountingRequestAuthenticator verifies the Accounting-Request
// request authenticator is computed as MD5(code+id+length+16 zero bytes+
// attributes+secret), and that the wire packet carries that computed value
// rather than a caller-supplied one.
func TestRadiusAccountingRequestAuthenticator(t *testing.T) {
	t.Parallel()

	p := &dot1x.RadiusPacket{Code: dot1x.RadiusAccountingRequest, Identifier: 5}
	p.Add(dot1x.AttrUserName, []byte("bob"))

	buf, err := dot1x.MarshalRadius(p, testSecret, [16]byte{})
	if err != nil {
		t.Fatalf("MarshalRadius: %v", err)
	}
	if p.Authenticator == ([16]byte{}) {
		t.Error("Authenticator left at zero after MarshalRadius")
	}

	parsed, err := dot1x.UnmarshalRadius(buf, testSecret, [16]byte{})
	if err != nil {
		t.Fatalf("UnmarshalRadius: %v", err)
	}
	if parsed.Authenticator != p.Authenticator {
		t.Errorf("parsed Authenticator = %x, want %x", parsed.Authenticator, p.Authenticator)
	}
}

// TestRadiusAuthMismatch verifies that a tampered response fails with a
// KindCrypto error (§7): wrong secret must never validate.
func TestRadiusAuthMismatch(t *testing.T) {
	t.Parallel()

	var reqAuth [16]byte
	p := &dot1x.RadiusPacket{Code: dot1x.RadiusAccessAccept, Identifier: 9}
	buf, err := dot1x.MarshalRadius(p, testSecret, reqAuth)
	if err != nil {
		t.Fatalf("MarshalRadius: %v", err)
	}

	_, err = dot1x.UnmarshalRadius(buf, "wrong-secret", reqAuth)
	if err == nil {
		t.Fatal("expected auth mismatch error, got nil")
	}
	if !errors.Is(err, dot1x.ErrAuthMismatch) {
		t.Errorf("err = %v, want ErrAuthMismatch", err)
	}
	kind, ok := dot1x.KindOf(err)
	if !ok || kind != dot1x.KindCrypto {
		t.Errorf("kind = %v (ok=%v), want KindCrypto", kind, ok)
	}
}

func TestRadiusUnmarshalShortFrame(t *testing.T) {
	t.Parallel()

	_, err := dot1x.UnmarshalRadius([]byte{1, 2, 3}, testSecret, [16]byte{})
	if !errors.Is(err, dot1x.ErrShortFrame) {
		t.Errorf("err = %v, want ErrShortFrame", err)
	}
}

// TestEncodeUserPasswordLengthAndDeterminism verifies the RFC 2865 §5.2
// block cipher: output is padded to a 16-byte multiple and deterministic
// for a fixed (password, secret, authenticator) triple, but differs when
// the authenticator changes.
func TestEncodeUserPasswordLengthAndDeterminism(t *testing.T) {
	t.Parallel()

	var auth1, auth2 [16]byte
	auth1[0] = 1
	auth2[0] = 2

	enc1 := dot1x.EncodeUserPassword("hunter2", testSecret, auth1)
	enc1b := dot1x.EncodeUserPassword("hunter2", testSecret, auth1)
	enc2 := dot1x.EncodeUserPassword("hunter2", testSecret, auth2)

	if len(enc1)%16 != 0 {
		t.Errorf("encoded length %d not a multiple of 16", len(enc1))
	}
	if !bytes.Equal(enc1, enc1b) {
		t.Error("encoding is not deterministic for identical inputs")
	}
	if bytes.Equal(enc1, enc2) {
		t.Error("encoding did not change with a different request authenticator")
	}
}

func TestEncodeUserPasswordEmptyPassword(t *testing.T) {
	t.Parallel()

	var auth [16]byte
	enc := dot1x.EncodeUserPassword("", testSecret, auth)
	if len(enc) != 16 {
		t.Errorf("empty password encoded length = %d, want 16", len(enc))
	}
}
