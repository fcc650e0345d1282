package dot1x_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/dantte-lp/gobfd/internal/dot1x"
)

func TestNewIdentityRequest(t *testing.T) {
	t.Parallel()

	m := dot1x.NewIdentityRequest(7)

	if m.Kind != dot1x.KindIdentity {
		t.Errorf("Kind = %v, want KindIdentity", m.Kind)
	}
	if m.Code != dot1x.EapCodeRequest {
		t.Errorf("Code = %d, want EapCodeRequest", m.Code)
	}
	if m.Type != dot1x.EapTypeIdentity {
		t.Errorf("Type = %d, want EapTypeIdentity", m.Type)
	}
	if m.ID != 7 {
		t.Errorf("ID = %d, want 7", m.ID)
	}

	want := []byte{dot1x.EapCodeRequest, 7, 0, 5, dot1x.EapTypeIdentity}
	if !bytes.Equal(m.Raw, want) {
		t.Errorf("Raw = %x, want %x", m.Raw, want)
	}
}

func TestNewSuccessNewFailure(t *testing.T) {
	t.Parallel()

	s := dot1x.NewSuccess(3)
	wantS := []byte{dot1x.EapCodeSuccess, 3, 0, 4}
	if !bytes.Equal(s.Raw, wantS) {
		t.Errorf("Success Raw = %x, want %x", s.Raw, wantS)
	}

	f := dot1x.NewFailure(9)
	wantF := []byte{dot1x.EapCodeFailure, 9, 0, 4}
	if !bytes.Equal(f.Raw, wantF) {
		t.Errorf("Failure Raw = %x, want %x", f.Raw, wantF)
	}
}

// TestEapRoundTripIdentityResponse verifies R1: unmarshaling then
// remarshaling an EAP-Response/Identity PDU produces byte-identical output.
func TestEapRoundTripIdentityResponse(t *testing.T) {
	t.Parallel()

	src := mustMAC(t, "aa:bb:cc:dd:ee:ff")
	original := []byte{dot1x.EapCodeResponse, 5, 0, 9, dot1x.EapTypeIdentity, 'a', 'l', 'i', 'c'}

	msg, err := dot1x.UnmarshalEap(original, src)
	if err != nil {
		t.Fatalf("UnmarshalEap: %v", err)
	}
	if msg.Kind != dot1x.KindIdentity {
		t.Errorf("Kind = %v, want KindIdentity", msg.Kind)
	}
	if msg.Identity != "alic" {
		t.Errorf("Identity = %q, want %q", msg.Identity, "alic")
	}

	remarshaled := dot1x.MarshalEap(msg)
	if !bytes.Equal(remarshaled, original) {
		t.Errorf("round trip: got %x, want %x", remarshaled, original)
	}
}

// TestEapRoundTripUnknownMethod verifies R1 for an unrecognized EAP type:
// the codec must preserve Raw byte for byte rather than attempting to
// reinterpret the method's payload.
func TestEapRoundTripUnknownMethod(t *testing.T) {
	t.Parallel()

	src := mustMAC(t, "aa:bb:cc:dd:ee:ff")
	const unknownType = 0x32
	original := []byte{dot1x.EapCodeResponse, 2, 0, 10, unknownType, 1, 2, 3, 4, 5}

	msg, err := dot1x.UnmarshalEap(original, src)
	if err != nil {
		t.Fatalf("UnmarshalEap: %v", err)
	}
	if msg.Kind != dot1x.KindGeneric {
		t.Errorf("Kind = %v, want KindGeneric", msg.Kind)
	}

	remarshaled := dot1x.MarshalEap(msg)
	if !bytes.Equal(remarshaled, original) {
		t.Errorf("round trip: got %x, want %x", remarshaled, original)
	}
}

func TestEapRoundTripMd5ChallengeAndNak(t *testing.T) {
	t.Parallel()

	src := mustMAC(t, "00:00:00:00:00:01")

	cases := []struct {
		name string
		buf  []byte
		kind dot1x.MessageKind
	}{
		{"md5challenge", []byte{dot1x.EapCodeResponse, 1, 0, 22, dot1x.EapTypeMd5Challenge, 16,
			1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}, dot1x.KindMd5Challenge},
		{"legacynak", []byte{dot1x.EapCodeResponse, 1, 0, 6, dot1x.EapTypeLegacyNak, dot1x.EapTypeMd5Challenge}, dot1x.KindLegacyNak},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			msg, err := dot1x.UnmarshalEap(tc.buf, src)
			if err != nil {
				t.Fatalf("UnmarshalEap: %v", err)
			}
			if msg.Kind != tc.kind {
				t.Errorf("Kind = %v, want %v", msg.Kind, tc.kind)
			}
			if !bytes.Equal(dot1x.MarshalEap(msg), tc.buf) {
				t.Errorf("round trip mismatch")
			}
		})
	}
}

func TestUnmarshalEapShortFrame(t *testing.T) {
	t.Parallel()

	_, err := dot1x.UnmarshalEap([]byte{1, 2}, mustMAC(t, "00:00:00:00:00:01"))
	if !errors.Is(err, dot1x.ErrShortFrame) {
		t.Errorf("err = %v, want ErrShortFrame", err)
	}
}

func TestUnmarshalEapBadLength(t *testing.T) {
	t.Parallel()

	buf := []byte{dot1x.EapCodeRequest, 1, 0, 99, dot1x.EapTypeIdentity}
	_, err := dot1x.UnmarshalEap(buf, mustMAC(t, "00:00:00:00:00:01"))
	if !errors.Is(err, dot1x.ErrBadLength) {
		t.Errorf("err = %v, want ErrBadLength", err)
	}
}

func TestUnmarshalEapUnknownCode(t *testing.T) {
	t.Parallel()

	buf := []byte{99, 1, 0, 4}
	_, err := dot1x.UnmarshalEap(buf, mustMAC(t, "00:00:00:00:00:01"))
	if !errors.Is(err, dot1x.ErrUnknownEapCode) {
		t.Errorf("err = %v, want ErrUnknownEapCode", err)
	}
}

func TestUnmarshalEapSuccessFailure(t *testing.T) {
	t.Parallel()

	src := mustMAC(t, "00:00:00:00:00:01")

	s, err := dot1x.UnmarshalEap([]byte{dot1x.EapCodeSuccess, 4, 0, 4}, src)
	if err != nil {
		t.Fatalf("UnmarshalEap success: %v", err)
	}
	if s.Kind != dot1x.KindSuccess {
		t.Errorf("Kind = %v, want KindSuccess", s.Kind)
	}

	f, err := dot1x.UnmarshalEap([]byte{dot1x.EapCodeFailure, 4, 0, 4}, src)
	if err != nil {
		t.Fatalf("UnmarshalEap failure: %v", err)
	}
	if f.Kind != dot1x.KindFailure {
		t.Errorf("Kind = %v, want KindFailure", f.Kind)
	}
}
