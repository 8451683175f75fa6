package wire

import (
	"strings"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	f := Frame{
		Type:     FrameTunnelData,
		TunnelID: "web-abc123",
		Data:     []byte("hello"),
	}

	raw, err := Encode(f)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if got.Type != f.Type || got.TunnelID != f.TunnelID || string(got.Data) != string(f.Data) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, f)
	}
}

func TestDecodeUnknownTypeDoesNotError(t *testing.T) {
	raw := []byte(`{"type":"something_future","tunnel_id":"x"}`)

	f, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode should not error on unknown type: %v", err)
	}
	if f.Type != "something_future" {
		t.Fatalf("expected type to be preserved, got %q", f.Type)
	}
}

func TestDataEncodesAsHexNotBase64(t *testing.T) {
	f := Frame{Type: FrameTunnelData, TunnelID: "web-abc123", Data: []byte{0xDE, 0xAD, 0xBE, 0xEF}}

	raw, err := Encode(f)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	if !strings.Contains(string(raw), `"data":"deadbeef"`) {
		t.Fatalf("expected lowercase hex data field, got %s", raw)
	}
	if strings.Contains(string(raw), "3q2+7w==") {
		t.Fatalf("data field looks base64-encoded, want hex: %s", raw)
	}

	got, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if string(got.Data) != string(f.Data) {
		t.Fatalf("round trip mismatch: got %x, want %x", got.Data, f.Data)
	}
}

func TestDecodeMalformedJSON(t *testing.T) {
	_, err := Decode([]byte(`{not json`))
	if err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}
