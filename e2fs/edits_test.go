package e2fs

import "testing"

func alwaysConfirm(string) bool { return true }
func neverConfirm(string) bool  { return false }

// TestChangeBlockWritesExactBytes covers spec.md §8 scenario 6: the 4 bytes
// at inode.offset+40 become 0x64 0x00 0x00 0x00 after ChangeBlock(ino, 0,
// 100, ...), and re-reading the inode's block0 field yields 100.
func TestChangeBlockWritesExactBytes(t *testing.T) {
	img, sb := newFixtureImage(t)
	defer img.Close()

	ino, err := sb.Inode(2)
	if err != nil {
		t.Fatal(err)
	}
	if err := ChangeBlock(ino, 0, 100, alwaysConfirm); err != nil {
		t.Fatal(err)
	}
	raw, err := img.ReadExact(ino.Offset()+40, 4)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0x64, 0x00, 0x00, 0x00}
	for i := range want {
		if raw[i] != want[i] {
			t.Fatalf("bytes at offset+40 = %v, want %v", raw, want)
		}
	}
	if got := ino.MustUint(blockFieldName(0)); got != 100 {
		t.Fatalf("block0 after ChangeBlock = %d, want 100", got)
	}
}

func TestChangeBlockOtherDirectPointersUnchanged(t *testing.T) {
	img, sb := newFixtureImage(t)
	defer img.Close()

	ino, err := sb.Inode(2)
	if err != nil {
		t.Fatal(err)
	}
	f1 := ino.Schema().Field(blockFieldName(1))
	before, err := img.ReadExact(ino.Offset()+int64(f1.Offset), 4)
	if err != nil {
		t.Fatal(err)
	}
	if err := ChangeBlock(ino, 0, 100, alwaysConfirm); err != nil {
		t.Fatal(err)
	}
	after, err := img.ReadExact(ino.Offset()+int64(f1.Offset), 4)
	if err != nil {
		t.Fatal(err)
	}
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("block1 bytes changed: before %v, after %v", before, after)
		}
	}
}

func TestChangeBlockAbortsWhenNotConfirmed(t *testing.T) {
	img, sb := newFixtureImage(t)
	defer img.Close()

	ino, err := sb.Inode(2)
	if err != nil {
		t.Fatal(err)
	}
	err = ChangeBlock(ino, 0, 100, neverConfirm)
	if err == nil {
		t.Fatal("expected abort")
	}
	if _, ok := err.(*FsystemOperationAborted); !ok {
		t.Fatalf("expected *FsystemOperationAborted, got %T", err)
	}
	blocks, _, err := ino.EachBlock(false)
	if err != nil {
		t.Fatal(err)
	}
	if len(blocks) != 1 || blocks[0] != fixtureRootDataBlkid {
		t.Fatalf("aborted edit should leave the inode untouched, got %v", blocks)
	}
}

// TestChangeBlkcountTakesExplicitInode proves there is no undefined `inode`
// variable to dereference: ChangeBlkcount always operates on the inode
// passed in, never ambient state.
func TestChangeBlkcountTakesExplicitInode(t *testing.T) {
	img, sb := newFixtureImage(t)
	defer img.Close()

	ino, err := sb.Inode(2)
	if err != nil {
		t.Fatal(err)
	}
	if err := ChangeBlkcount(ino, 3, alwaysConfirm); err != nil {
		t.Fatal(err)
	}
	want := uint32(3 * (2 << sb.MustUint("log_block_size")))
	got := uint32(ino.MustUint("blocks_lo"))
	if got != want {
		t.Fatalf("blocks_lo = %d, want %d", got, want)
	}
}

func TestChangeBlkcountAbortsWhenNotConfirmed(t *testing.T) {
	img, sb := newFixtureImage(t)
	defer img.Close()

	ino, err := sb.Inode(2)
	if err != nil {
		t.Fatal(err)
	}
	before := ino.MustUint("blocks_lo")
	err = ChangeBlkcount(ino, 3, neverConfirm)
	if _, ok := err.(*FsystemOperationAborted); !ok {
		t.Fatalf("expected *FsystemOperationAborted, got %T", err)
	}
	if ino.MustUint("blocks_lo") != before {
		t.Fatal("aborted edit should leave blocks_lo untouched")
	}
}

// TestChangeDirEntryOnlyChangesInode covers spec.md §8's round-trip law:
// rec_len/name_len/name/file_type survive a ChangeDirEntry unchanged.
func TestChangeDirEntryOnlyChangesInode(t *testing.T) {
	img, sb := newFixtureImage(t)
	defer img.Close()

	db := NewDirectoryBlock(sb, fixtureRootDataBlkid)
	entries, err := db.EachEntry()
	if err != nil {
		t.Fatal(err)
	}
	dotdot := entries[1]
	recLenBefore := dotdot.RecLen()
	nameLenBefore := dotdot.NameLen()
	fileTypeBefore := dotdot.MustUint("file_type")
	nameBefore, err := dotdot.Name()
	if err != nil {
		t.Fatal(err)
	}

	if err := ChangeDirEntry(dotdot, 99, alwaysConfirm); err != nil {
		t.Fatal(err)
	}

	entries, err = db.EachEntry()
	if err != nil {
		t.Fatal(err)
	}
	after := entries[1]
	if after.Inode() != 99 {
		t.Fatalf("Inode() = %d, want 99", after.Inode())
	}
	if after.RecLen() != recLenBefore {
		t.Errorf("rec_len changed: %d != %d", after.RecLen(), recLenBefore)
	}
	if after.NameLen() != nameLenBefore {
		t.Errorf("name_len changed: %d != %d", after.NameLen(), nameLenBefore)
	}
	if after.MustUint("file_type") != fileTypeBefore {
		t.Errorf("file_type changed: %d != %d", after.MustUint("file_type"), fileTypeBefore)
	}
	nameAfter, err := after.Name()
	if err != nil {
		t.Fatal(err)
	}
	if string(nameAfter) != string(nameBefore) {
		t.Errorf("name changed: %q != %q", nameAfter, nameBefore)
	}
}

func TestChangeDirEntryAbortsWhenNotConfirmed(t *testing.T) {
	img, sb := newFixtureImage(t)
	defer img.Close()

	db := NewDirectoryBlock(sb, fixtureRootDataBlkid)
	entries, err := db.EachEntry()
	if err != nil {
		t.Fatal(err)
	}
	dotdot := entries[1]
	err = ChangeDirEntry(dotdot, 99, neverConfirm)
	if _, ok := err.(*FsystemOperationAborted); !ok {
		t.Fatalf("expected *FsystemOperationAborted, got %T", err)
	}
	if dotdot.Inode() != 2 {
		t.Fatalf("aborted edit should leave the entry untouched, got inode %d", dotdot.Inode())
	}
}
