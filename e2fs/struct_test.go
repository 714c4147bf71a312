package e2fs

import (
	"testing"

	"github.com/go-test/deep"
)

func TestSchemaFromSeqOffsetsAreCumulative(t *testing.T) {
	s := SchemaFromSeq("T", []FieldSpec{
		u8("a", ""),
		u16("b", ""),
		u32("c", ""),
		bytesField("d", 3, ""),
	})
	want := []Field{
		{Name: "a", Offset: 0, Size: 1, Kind: KindUint8},
		{Name: "b", Offset: 1, Size: 2, Kind: KindUint16},
		{Name: "c", Offset: 3, Size: 4, Kind: KindUint32},
		{Name: "d", Offset: 7, Size: 3, Kind: KindBytes},
	}
	for i, f := range want {
		got := s.Fields[i]
		if got.Name != f.Name || got.Offset != f.Offset || got.Size != f.Size || got.Kind != f.Kind {
			t.Errorf("field %d: got %+v, want %+v", i, got, f)
		}
	}
	if s.Size != 10 {
		t.Errorf("schema size = %d, want 10", s.Size)
	}
}

func TestNewSchemaPanicsOnSizeMismatch(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on declared-size mismatch")
		}
	}()
	NewSchema("Bad", 10, []Field{{Name: "a", Offset: 0, Size: 4, Kind: KindUint32}})
}

func TestRecordUintIsPureFunctionOfBytes(t *testing.T) {
	// Round-trip law (spec.md §8): decoding a field is a pure function of
	// the raw bytes at offset..offset+size, independent of how many times
	// it's read or whether another record shares the same schema.
	img, sb := newFixtureImage(t)
	defer img.Close()

	a := sb.MustUint("magic")
	b := sb.MustUint("magic")
	if a != b {
		t.Fatalf("repeated Uint reads diverged: %d != %d", a, b)
	}
	if a != Ext2Magic {
		t.Fatalf("magic = %#x, want %#x", a, Ext2Magic)
	}
}

func TestRecordInvalidateDropsCache(t *testing.T) {
	img, sb := newFixtureImage(t)
	defer img.Close()

	before := sb.MustUint("magic")
	if err := img.WriteExact(sb.Offset()+56, []byte{0x00, 0x00}); err != nil {
		t.Fatal(err)
	}
	stale := sb.MustUint("magic")
	if stale != before {
		t.Fatalf("expected stale cached read to still be %d, got %d", before, stale)
	}
	sb.Invalidate()
	fresh := sb.MustUint("magic")
	if fresh != 0 {
		t.Fatalf("after Invalidate, expected freshly-read 0, got %d", fresh)
	}
}

func TestPrettyValResolutionOrder(t *testing.T) {
	img, sb := newFixtureImage(t)
	defer img.Close()

	if got := sb.PrettyVal("state"); got != "EXT2_VALID_FS" {
		t.Errorf("enum resolution: got %q, want EXT2_VALID_FS", got)
	}
	if diff := deep.Equal(sb.Errors(), []string(nil)); diff != nil {
		t.Errorf("fresh record should carry no errors yet: %v", diff)
	}
}
