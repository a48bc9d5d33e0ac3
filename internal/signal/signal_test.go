package signal

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseValue(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantKind Kind
		wantText string
	}{
		{name: "integer", input: "42", wantKind: KindNumber, wantText: "42"},
		{name: "decimal", input: "20.5", wantKind: KindNumber, wantText: "20.5"},
		{name: "negative with spaces", input: " -3.25 ", wantKind: KindNumber, wantText: "-3.25"},
		{name: "contact state", input: "OPEN", wantKind: KindString, wantText: "OPEN"},
		{name: "empty", input: "", wantKind: KindString, wantText: ""},
		{name: "number with unit stays string", input: "20 °C", wantKind: KindString, wantText: "20 °C"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := ParseValue(tt.input)
			if v.Kind() != tt.wantKind {
				t.Errorf("Kind() = %v, want %v", v.Kind(), tt.wantKind)
			}
			if v.Text() != tt.wantText {
				t.Errorf("Text() = %q, want %q", v.Text(), tt.wantText)
			}
		})
	}
}

func TestValue_Equal(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want bool
	}{
		{name: "same number", a: Number(21), b: Number(21), want: true},
		{name: "different number", a: Number(21), b: Number(21.5), want: false},
		{name: "same string", a: String("ON"), b: String("ON"), want: true},
		{name: "number vs string", a: Number(1), b: String("1"), want: false},
		{name: "zero values", a: Value{}, b: Value{}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Equal(tt.b); got != tt.want {
				t.Errorf("Equal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValue_JSON(t *testing.T) {
	data, err := json.Marshal(map[string]Value{"n": Number(20.5), "s": String("OPEN")})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(data) != `{"n":20.5,"s":"OPEN"}` {
		t.Errorf("Marshal() = %s", data)
	}

	var decoded map[string]Value
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if !decoded["n"].Equal(Number(20.5)) {
		t.Errorf("decoded n = %v, want 20.5", decoded["n"])
	}
	if !decoded["s"].Equal(String("OPEN")) {
		t.Errorf("decoded s = %v, want OPEN", decoded["s"])
	}

	var bad Value
	if err := json.Unmarshal([]byte(`{"x":1}`), &bad); err == nil {
		t.Error("Unmarshal() of object expected error")
	}
}

func TestSignal_Equal(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	base := Signal{ID: "oh:Temp", Value: Number(20), Unit: "°C", Timestamp: ts, Source: "openhab"}

	same := base
	same.Timestamp = ts.In(time.FixedZone("CET", 3600))
	if !base.Equal(same) {
		t.Error("Equal() = false for same instant in another zone")
	}

	changedUnit := base
	changedUnit.Unit = "°F"
	if base.Equal(changedUnit) {
		t.Error("Equal() = true for different unit")
	}

	changedTime := base
	changedTime.Timestamp = ts.Add(time.Second)
	if base.Equal(changedTime) {
		t.Error("Equal() = true for different timestamp")
	}
}

func TestSplitID(t *testing.T) {
	tests := []struct {
		id         string
		wantPrefix string
		wantLocal  string
		wantOK     bool
	}{
		{id: "oh:LivingRoom_Temperature", wantPrefix: "oh", wantLocal: "LivingRoom_Temperature", wantOK: true},
		{id: "ha:sensor.kitchen", wantPrefix: "ha", wantLocal: "sensor.kitchen", wantOK: true},
		{id: "mq:home/a:b", wantPrefix: "mq", wantLocal: "home/a:b", wantOK: true},
		{id: "noprefix", wantPrefix: "", wantLocal: "noprefix", wantOK: false},
		{id: ":local", wantPrefix: "", wantLocal: ":local", wantOK: false},
		{id: "oh:", wantPrefix: "", wantLocal: "oh:", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			prefix, local, ok := SplitID(tt.id)
			if prefix != tt.wantPrefix || local != tt.wantLocal || ok != tt.wantOK {
				t.Errorf("SplitID(%q) = (%q, %q, %v), want (%q, %q, %v)",
					tt.id, prefix, local, ok, tt.wantPrefix, tt.wantLocal, tt.wantOK)
			}
		})
	}

	if got := ID("oh", "Temp"); got != "oh:Temp" {
		t.Errorf("ID() = %q, want oh:Temp", got)
	}
	if !HasPrefix("oh:Temp", "oh") {
		t.Error("HasPrefix(oh:Temp, oh) = false")
	}
	if HasPrefix("ohx:Temp", "oh") {
		t.Error("HasPrefix(ohx:Temp, oh) = true")
	}
}
