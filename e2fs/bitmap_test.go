package e2fs

import "testing"

func TestMemBitmapSetAndBit(t *testing.T) {
	bm := NewMemBitmapBits(20)
	if bm.Len() != 24 { // rounded up to a whole byte
		t.Fatalf("Len() = %d, want 24", bm.Len())
	}
	if err := bm.Set(5, true); err != nil {
		t.Fatal(err)
	}
	if err := bm.Set(17, true); err != nil {
		t.Fatal(err)
	}
	set, err := bm.Bit(5)
	if err != nil || !set {
		t.Fatalf("bit 5: got (%v, %v), want (true, nil)", set, err)
	}
	unset, err := bm.Bit(6)
	if err != nil || unset {
		t.Fatalf("bit 6: got (%v, %v), want (false, nil)", unset, err)
	}
	n, err := bm.Count()
	if err != nil || n != 2 {
		t.Fatalf("Count() = (%d, %v), want (2, nil)", n, err)
	}
}

func TestMemBitmapEachSetAscending(t *testing.T) {
	bm := NewMemBitmapBits(40)
	for _, i := range []int{31, 2, 15, 0} {
		if err := bm.Set(i, true); err != nil {
			t.Fatal(err)
		}
	}
	got, err := bm.EachSet()
	if err != nil {
		t.Fatal(err)
	}
	want := []int{0, 2, 15, 31}
	if len(got) != len(want) {
		t.Fatalf("EachSet() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("EachSet() = %v, want %v", got, want)
		}
		if i > 0 && got[i] <= got[i-1] {
			t.Fatalf("EachSet() not strictly ascending: %v", got)
		}
	}
	for _, v := range got {
		if v < 0 || v >= bm.Len() {
			t.Fatalf("EachSet() yielded %d outside [0, %d)", v, bm.Len())
		}
	}
}

func TestMemBitmapOutOfRangeIsImageEOF(t *testing.T) {
	bm := NewMemBitmapBits(8)
	if _, err := bm.Bit(100); err == nil {
		t.Fatal("expected an error reading past the bitmap's length")
	} else if _, ok := err.(*ImageEOF); !ok {
		t.Fatalf("expected *ImageEOF, got %T: %v", err, err)
	}
}

func TestMemBitmapToBytesRoundTrips(t *testing.T) {
	bm := NewMemBitmapBits(16)
	bm.Set(3, true)
	bm.Set(12, true)
	raw := bm.(*memBitmap).ToBytes()
	restored := NewMemBitmap(raw)
	for _, i := range []int{3, 12} {
		set, err := restored.Bit(i)
		if err != nil || !set {
			t.Fatalf("restored bit %d = (%v, %v), want (true, nil)", i, set, err)
		}
	}
}

func TestStreamBitmapOverImage(t *testing.T) {
	img, sb := newFixtureImage(t)
	defer img.Close()

	bg, err := sb.Blkgrp(0)
	if err != nil {
		t.Fatal(err)
	}
	data := bg.DataBitmap()
	set, err := data.Bit(fixtureRootDataBlkid)
	if err != nil || !set {
		t.Fatalf("root data block %d should be marked used in the fixture bitmap: (%v, %v)", fixtureRootDataBlkid, set, err)
	}
	free, err := data.Bit(fixtureRootDataBlkid + 1)
	if err != nil || free {
		t.Fatalf("block %d should be free in the fixture bitmap", fixtureRootDataBlkid+1)
	}
}
