package protocol

import "testing"

func TestIsKnownCode(t *testing.T) {
	cases := []string{
		"",
		ErrProtoBadRequest,
		ErrProtoUnsupported,
		ErrWorldNotFound,
		ErrBadRequest,
		ErrStore,
		ErrInternal,
	}
	for _, c := range cases {
		if !IsKnownCode(c) {
			t.Fatalf("expected known code: %q", c)
		}
	}
	if IsKnownCode("E_NOT_DEFINED") {
		t.Fatalf("expected unknown code rejected")
	}
}

func TestDecodeBase(t *testing.T) {
	m, err := DecodeBase([]byte(`{"type":"GROW","protocol_version":"1.0","request_id":"r1"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.Type != TypeGrow || m.RequestID != "r1" || m.ProtocolVersion != Version {
		t.Fatalf("base=%+v", m)
	}
	if _, err := DecodeBase([]byte(`not json`)); err == nil {
		t.Fatalf("expected error")
	}
}
