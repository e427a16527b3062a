package wire

import (
	"reflect"
	"testing"
)

func TestBuildListAndParseRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		records []ListRecord
	}{
		{"empty", nil},
		{
			"unique id only",
			[]ListRecord{{Flags: 0, ID: 7, ConnFlags: 0}},
		},
		{
			"mixed names and unique ids",
			[]ListRecord{
				{ID: 1, ConnFlags: 3},
				{ID: 2, Flags: 0x4, Name: "com.example.Service", HasName: true},
				{ID: 3, Name: "a.b", HasName: true},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := BuildList(tt.records)

			if len(buf) < 8 {
				t.Fatalf("buffer too short: %d bytes", len(buf))
			}
			if len(buf)%8 != 0 {
				t.Errorf("buffer not 8-byte aligned: %d bytes", len(buf))
			}

			got, err := ParseList(buf)
			if err != nil {
				t.Fatalf("ParseList: %v", err)
			}

			want := make([]ParsedRecord, len(tt.records))
			for i, r := range tt.records {
				want[i] = ParsedRecord{Flags: r.Flags, ID: r.ID, ConnFlags: r.ConnFlags, Name: r.Name, HasName: r.HasName}
			}
			if len(got) == 0 {
				got = nil
			}
			if len(want) == 0 {
				want = nil
			}
			if !reflect.DeepEqual(got, want) {
				t.Errorf("round-trip mismatch:\n got=%+v\nwant=%+v", got, want)
			}
		})
	}
}

func TestParseListRejectsSizeMismatch(t *testing.T) {
	buf := BuildList([]ListRecord{{ID: 1}})
	buf = append(buf, 0, 0, 0, 0, 0, 0, 0, 0) // corrupt: extra trailing bytes

	if _, err := ParseList(buf); err == nil {
		t.Fatal("expected error for size mismatch, got nil")
	}
}

func TestFrameMarshalUnmarshalRoundTrip(t *testing.T) {
	f := &Frame{ConnID: 5, Op: 2, Sequence: 99, Payload: []byte("hello")}
	data, err := f.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	got := &Frame{}
	if err := got.Unmarshal(data); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.ConnID != f.ConnID || got.Op != f.Op || got.Sequence != f.Sequence || string(got.Payload) != string(f.Payload) {
		t.Errorf("round-trip mismatch: got=%+v want=%+v", got, f)
	}
}

func TestStringCodec(t *testing.T) {
	buf := PutString(nil, "com.example.Service")
	buf = PutUint64(buf, 42)

	s, rest, err := GetString(buf)
	if err != nil {
		t.Fatalf("GetString: %v", err)
	}
	if s != "com.example.Service" {
		t.Errorf("got %q", s)
	}
	v, rest, err := GetUint64(rest)
	if err != nil {
		t.Fatalf("GetUint64: %v", err)
	}
	if v != 42 {
		t.Errorf("got %d", v)
	}
	if len(rest) != 0 {
		t.Errorf("expected no remaining bytes, got %d", len(rest))
	}
}
