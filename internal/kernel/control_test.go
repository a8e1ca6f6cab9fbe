package kernel

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/kailas-cloud/kvecd/internal/domain"
)

func TestControlBlock_LayoutPinned(t *testing.T) {
	block := &ControlBlock{
		OpCode:       OpSearchVectors,
		Status:       -2,
		Dimension:    128,
		Metric:       1,
		VectorCount:  3,
		Limit:        10,
		Name:         "products",
		VectorBufPtr: 0x1122334455667788,
		VectorBufLen: 384,
		IDsPtr:       0x0807060504030201,
		IDsLen:       3,
		OutPtr:       0xAABBCCDDEEFF0011,
		OutLen:       10,
	}

	buf, err := block.MarshalBinary()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(buf) != ControlBlockSize {
		t.Fatalf("marshalled size = %d, want %d", len(buf), ControlBlockSize)
	}

	le := binary.LittleEndian
	if got := le.Uint32(buf[0:]); got != uint32(OpSearchVectors) {
		t.Errorf("op_code at offset 0 = %d", got)
	}
	if got := int32(le.Uint32(buf[4:])); got != -2 {
		t.Errorf("status at offset 4 = %d", got)
	}
	if got := le.Uint32(buf[8:]); got != 128 {
		t.Errorf("dimension at offset 8 = %d", got)
	}
	if got := le.Uint32(buf[12:]); got != 1 {
		t.Errorf("metric at offset 12 = %d", got)
	}
	if got := le.Uint32(buf[16:]); got != 3 {
		t.Errorf("vector_count at offset 16 = %d", got)
	}
	if got := le.Uint32(buf[20:]); got != 10 {
		t.Errorf("limit at offset 20 = %d", got)
	}
	if got := string(buf[24:32]); got != "products" {
		t.Errorf("name at offset 24 = %q", got)
	}
	if buf[32] != 0 {
		t.Error("name is not NUL-terminated")
	}
	if got := le.Uint64(buf[88:]); got != 0x1122334455667788 {
		t.Errorf("vector_buf_ptr at offset 88 = %#x", got)
	}
	if got := le.Uint64(buf[96:]); got != 384 {
		t.Errorf("vector_buf_len at offset 96 = %d", got)
	}
	if got := le.Uint64(buf[104:]); got != 0x0807060504030201 {
		t.Errorf("ids_ptr at offset 104 = %#x", got)
	}
	if got := le.Uint64(buf[112:]); got != 3 {
		t.Errorf("ids_len at offset 112 = %d", got)
	}
	if got := le.Uint64(buf[120:]); got != 0xAABBCCDDEEFF0011 {
		t.Errorf("out_ptr at offset 120 = %#x", got)
	}
	if got := le.Uint64(buf[128:]); got != 10 {
		t.Errorf("out_len at offset 128 = %d", got)
	}
}

func TestControlBlock_RoundTrip(t *testing.T) {
	in := &ControlBlock{
		OpCode:      OpInsertPoints,
		Dimension:   4,
		Metric:      2,
		VectorCount: 5,
		Name:        "events",
		IDsLen:      5,
		OutLen:      5,
	}
	buf, err := in.MarshalBinary()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var out ControlBlock
	if err := out.UnmarshalBinary(buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != *in {
		t.Errorf("round trip mismatch: got %+v, want %+v", out, *in)
	}
}

func TestControlBlock_NameTooLong(t *testing.T) {
	if _, err := NewControlBlock(OpCollectionInfo, strings.Repeat("x", NameSize)); err == nil {
		t.Fatal("expected error for oversized name")
	}
	if _, err := NewControlBlock(OpCollectionInfo, strings.Repeat("x", NameSize-1)); err != nil {
		t.Fatalf("name of %d bytes should fit: %v", NameSize-1, err)
	}
}

func TestControlBlock_UnmarshalWrongSize(t *testing.T) {
	var b ControlBlock
	if err := b.UnmarshalBinary(make([]byte, ControlBlockSize-1)); err == nil {
		t.Fatal("expected error for truncated block")
	}
}

func TestMetricCode(t *testing.T) {
	for _, d := range []string{"Cosine", "Euclidean", "Dot"} {
		code, err := MetricCode(domain.Distance(d))
		if err != nil {
			t.Fatalf("MetricCode(%s): %v", d, err)
		}
		back, err := MetricDistance(code)
		if err != nil {
			t.Fatalf("MetricDistance(%d): %v", code, err)
		}
		if string(back) != d {
			t.Errorf("metric %s round-tripped to %s", d, back)
		}
	}
	if _, err := MetricCode("Manhattan"); err == nil {
		t.Error("expected error for unknown metric")
	}
	if _, err := MetricDistance(99); err == nil {
		t.Error("expected error for unknown metric code")
	}
}
