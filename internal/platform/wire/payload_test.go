package wire

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDecodeInt64_SplitWords(t *testing.T) {
	tests := []struct {
		name string
		in   interface{}
		want int64
		ok   bool
	}{
		{"nil", nil, 0, false},
		{"plain int", 42, 42, true},
		{"plain float64", float64(42), 42, true},
		{"json number", json.Number("1234567890123"), 1234567890123, true},
		{"numeric string", "77", 77, true},
		{"garbage string", "abc", 0, false},
		{"bool", true, 0, false},
		{"split low/high", map[string]interface{}{"low": float64(4294967295), "high": float64(1)}, 8589934591, true},
		{"split zero high", map[string]interface{}{"low": float64(12), "high": float64(0)}, 12, true},
		{"split negative low word", map[string]interface{}{"low": float64(-1), "high": float64(0)}, 4294967295, true},
		{"split missing high", map[string]interface{}{"low": float64(1)}, 0, false},
		{"split non-numeric half", map[string]interface{}{"low": "x", "high": float64(1)}, 0, false},
	}

	for _, tt := range tests {
		got, ok := DecodeInt64(tt.in)
		if ok != tt.ok {
			t.Errorf("%s: DecodeInt64 ok = %v, want %v", tt.name, ok, tt.ok)
			continue
		}
		if ok && got != tt.want {
			t.Errorf("%s: DecodeInt64 = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestDecodeFloat(t *testing.T) {
	if f, ok := DecodeFloat(2.5); !ok || f != 2.5 {
		t.Errorf("DecodeFloat(2.5) = %v %v", f, ok)
	}
	if f, ok := DecodeFloat(map[string]interface{}{"low": float64(10), "high": float64(0)}); !ok || f != 10 {
		t.Errorf("DecodeFloat(split) = %v %v", f, ok)
	}
	if _, ok := DecodeFloat(nil); ok {
		t.Error("DecodeFloat(nil) should not decode")
	}
	if _, ok := DecodeFloat([]string{"x"}); ok {
		t.Error("DecodeFloat(slice) should not decode")
	}
}

func TestPayload_Accessors(t *testing.T) {
	p := Payload{
		"id":      map[string]interface{}{"low": float64(5), "high": float64(0)},
		"amount":  float64(3.5),
		"code":    "PX-01",
		"cleared": nil,
	}

	if !p.Has("cleared") {
		t.Error("Has should report present-as-null keys")
	}
	if p.Has("missing") {
		t.Error("Has should not report absent keys")
	}
	if n := p.Int64("id"); n == nil || *n != 5 {
		t.Errorf("Int64(id) = %v, want 5", n)
	}
	if n := p.Int64("cleared"); n != nil {
		t.Errorf("Int64(cleared) = %v, want nil", n)
	}
	if n := p.Int64("missing"); n != nil {
		t.Errorf("Int64(missing) = %v, want nil", n)
	}
	if f := p.Float("amount"); f == nil || *f != 3.5 {
		t.Errorf("Float(amount) = %v, want 3.5", f)
	}
	if s := p.String("code"); s == nil || *s != "PX-01" {
		t.Errorf("String(code) = %v, want PX-01", s)
	}
	if s := p.String("amount"); s != nil {
		t.Errorf("String(amount) = %v, want nil for non-string", s)
	}
}

func TestPayload_Time(t *testing.T) {
	ms := int64(1700000000000)
	p := Payload{"documentDate": float64(ms)}

	got := p.Time("documentDate")
	if got == nil {
		t.Fatal("Time returned nil")
	}
	want := time.UnixMilli(ms).UTC()
	if !got.Equal(want) {
		t.Errorf("Time = %v, want %v", got, want)
	}
	if p.Time("missing") != nil {
		t.Error("Time(missing) should be nil")
	}
}
