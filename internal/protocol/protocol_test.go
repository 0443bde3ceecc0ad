package protocol

import (
	"testing"
	"time"
)

func TestDecodeBase(t *testing.T) {
	m, err := DecodeBase([]byte(`{"type":"paint","pixels":[]}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.Type != TypePaint {
		t.Fatalf("expected paint, got %q", m.Type)
	}

	if _, err := DecodeBase([]byte(`{"type":`)); err == nil {
		t.Fatalf("expected malformed JSON to fail")
	}
}

func TestDecodePaint_DropsBadEntriesKeepsSiblings(t *testing.T) {
	raw := []byte(`{"type":"paint","pixels":[
		{"i":10,"j":-3,"color":"#ff0000","ownerName":"alice"},
		{"i":"NaN","j":0,"color":"#fff","ownerName":"bob"},
		{"i":1,"j":2,"color":5,"ownerName":"bob"},
		{"i":2.7,"j":-0.1,"color":"erase","ownerName":"carol"}
	]}`)
	pixels, err := DecodePaint(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(pixels) != 2 {
		t.Fatalf("expected 2 surviving entries, got %d", len(pixels))
	}
	if pixels[0].OwnerName != "alice" || pixels[1].OwnerName != "carol" {
		t.Fatalf("wrong survivors: %+v", pixels)
	}
	if pixels[1].Color != EraseColor {
		t.Fatalf("expected erase sentinel, got %q", pixels[1].Color)
	}
}

func TestDecodePaint_MalformedFrame(t *testing.T) {
	if _, err := DecodePaint([]byte(`{"type":"paint","pixels":42}`)); err == nil {
		t.Fatalf("expected frame-level decode error")
	}
}

func TestStampRoundtrip(t *testing.T) {
	now := time.Date(2026, 2, 11, 9, 30, 0, 123456789, time.UTC)
	s := FormatStamp(now)
	got, err := ParseStamp(s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	if !got.Equal(now) {
		t.Fatalf("roundtrip mismatch: %v != %v", got, now)
	}
	// Non-UTC times are normalized to UTC on the wire.
	loc := time.FixedZone("X", 3600)
	s2 := FormatStamp(now.In(loc))
	if s2 != s {
		t.Fatalf("expected UTC normalization, got %q", s2)
	}
}
