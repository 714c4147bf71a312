package e2fs

import (
	"bytes"
	"encoding/gob"
	"io"
	"os"
	"sort"

	"github.com/pierrec/lz4"
	"github.com/sirupsen/logrus"
)

// AnalyzerProgress is reported to the Analyzer's caller after every group
// scanned, so a long run against a multi-gigabyte image can drive a
// progress bar (spec.md §4.9).
type AnalyzerProgress struct {
	BGDone, BGTotal uint32
}

// analyzerCheckpoint is the persisted tuple (spec.md §4.9: "a version
// counter, the next block group to scan, and a bitmap of every block
// confirmed reachable so far"). Serialized with encoding/gob — the pack's
// examples carry no third-party serialization library, so this one
// structured-data concern stays on the standard library (see DESIGN.md).
type analyzerCheckpoint struct {
	Version     int
	BGNext      uint32
	ValidBlocks []byte // memBitmap contents
	DirBlocks   map[uint32]bool
	ValidInodes map[uint32]bool
}

// analyzerVersion is bumped whenever the checkpoint's shape changes;
// Resume discards any file whose version doesn't match rather than trying
// to interpret stale bytes (spec.md §4.9).
const analyzerVersion = 1

// Analyzer walks every block group of an image once, classifying each
// block as group-metadata (head), directory-shaped (found by direct
// parsing plus the data-bitmap in-use check, not by walking the inode
// table), or data reachable
// from a validated non-directory inode, and persists progress so a run
// interrupted partway through resumes instead of restarting (spec.md
// §4.9). Grounded on original_source/pyutil/main.py's analyze/_handle.
type Analyzer struct {
	sb           *Superblock
	checkpointAt string

	validBlocks Bitmap
	dirBlocks   map[uint32]bool
	validInodes map[uint32]bool
	bgNext      uint32
}

// NewAnalyzer constructs an Analyzer over sb, persisting its checkpoint at
// checkpointAt. Call Resume before Run to pick up a prior run's state.
func NewAnalyzer(sb *Superblock, checkpointAt string) *Analyzer {
	return &Analyzer{
		sb:           sb,
		checkpointAt: checkpointAt,
		validBlocks:  NewMemBitmapBits(int(sb.BlocksCountLo())),
		dirBlocks:    map[uint32]bool{},
		validInodes:  map[uint32]bool{},
	}
}

// Resume loads checkpointAt if present and its version matches; a missing
// file or a version mismatch leaves the Analyzer at its fresh-start state
// (spec.md §4.9: "resumed automatically... if the file is absent or its
// version does not match the running code, analysis restarts").
func (a *Analyzer) Resume() error {
	raw, err := os.ReadFile(a.checkpointAt)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	decompressed, err := io.ReadAll(lz4.NewReader(bytes.NewReader(raw)))
	if err != nil {
		logrus.WithError(err).Warn("analyzer checkpoint unreadable, restarting")
		return nil
	}
	var cp analyzerCheckpoint
	if err := gob.NewDecoder(bytes.NewReader(decompressed)).Decode(&cp); err != nil {
		logrus.WithError(err).Warn("analyzer checkpoint corrupt, restarting")
		return nil
	}
	if cp.Version != analyzerVersion {
		logrus.WithField("found", cp.Version).WithField("want", analyzerVersion).
			Warn("analyzer checkpoint version mismatch, restarting")
		return nil
	}
	a.bgNext = cp.BGNext
	a.validBlocks = NewMemBitmap(cp.ValidBlocks)
	a.dirBlocks = cp.DirBlocks
	a.validInodes = cp.ValidInodes
	return nil
}

// save serializes the current checkpoint, lz4-compresses it, and writes it
// atomically (write-temp + rename).
func (a *Analyzer) save() error {
	cp := analyzerCheckpoint{
		Version:     analyzerVersion,
		BGNext:      a.bgNext,
		ValidBlocks: a.validBlocks.(*memBitmap).ToBytes(),
		DirBlocks:   a.dirBlocks,
		ValidInodes: a.validInodes,
	}
	var plain bytes.Buffer
	if err := gob.NewEncoder(&plain).Encode(cp); err != nil {
		return err
	}
	var compressed bytes.Buffer
	w := lz4.NewWriter(&compressed)
	if _, err := w.Write(plain.Bytes()); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	tmp := a.checkpointAt + ".tmp"
	if err := os.WriteFile(tmp, compressed.Bytes(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, a.checkpointAt)
}

// Run scans every remaining block group starting at bgNext (0 on a fresh
// start, or wherever Resume left off), calling progress after each group
// and checkpointing after each group so a kill mid-run loses at most one
// group's work.
func (a *Analyzer) Run(progress func(AnalyzerProgress)) error {
	total := a.sb.BGCount()
	for a.bgNext < total {
		bg, err := a.sb.Blkgrp(a.bgNext)
		if err != nil {
			return err
		}
		if err := a.scanGroup(bg); err != nil {
			return err
		}
		a.bgNext++
		if err := a.save(); err != nil {
			return err
		}
		if progress != nil {
			progress(AnalyzerProgress{BGDone: a.bgNext, BGTotal: total})
		}
	}
	return nil
}

// scanGroup implements spec.md §4.9's four-step per-group scan. Grounded
// directly on original_source/pyutil/main.py's analyze/_handle: head
// blocks are marked valid from the single head_count formula; every other
// block is parsed cold as a DirectoryBlock (never trusting the data
// bitmap or inode table to decide what to look at — that trust is
// exactly what the analyzer exists to route around, spec.md §4.9 intro);
// only once a block validates as directory-shaped do its entries' inodes
// get walked, validated, and size-checked before their blocks are ever
// marked valid.
func (a *Analyzer) scanGroup(bg *BlockGroup) error {
	blockSize := a.sb.BlockSize()
	limit := a.sb.BlocksCountLo()
	perGroupBlocks := a.sb.BlocksPerGroup()
	base := bg.BG() * perGroupBlocks
	headCount := bg.BitmapOffset() + uint32(bg.InodeBlockCount()) + 2

	seenInode := map[uint32]bool{}

	for i := uint32(0); i < perGroupBlocks; i++ {
		blkid := base + i
		if blkid == limit {
			break
		}
		if i < headCount {
			a.validBlocks.Set(int(blkid), true)
		}
		if set, err := a.validBlocks.Bit(int(blkid)); err == nil && set {
			continue
		}

		db := NewDirectoryBlock(a.sb, blkid)
		errs, err := db.Validate(true, true)
		if err != nil || len(errs) > 0 {
			continue
		}
		// A good directory block.
		a.dirBlocks[blkid] = true

		entries, err := db.EachEntry()
		if err != nil {
			continue
		}
		for _, e := range entries {
			id := e.Inode()
			if id == 0 {
				continue
			}
			ino, err := a.sb.Inode(id)
			if err != nil {
				continue
			}
			if seenInode[id] {
				continue // already validated this group's scan
			}
			ino.Validate(true) // side effect: records its own findings, doesn't gate

			blocks, _, err := ino.EachBlock(true)
			if err != nil || len(blocks) == 0 {
				continue
			}
			n := uint64(len(blocks))
			sizeLo := ino.SizeLo()
			if sizeLo <= (n-1)*uint64(blockSize) || sizeLo > n*uint64(blockSize) {
				continue
			}
			seenInode[id] = true
			a.validInodes[id] = true
			if !ino.IsDir() {
				for _, b := range blocks {
					if b > 0 && b < limit {
						a.validBlocks.Set(int(b), true)
					}
				}
			}
		}
	}
	return nil
}

// DirectoryBlockIDs returns every block id classified as directory-shaped
// during the last completed Run by direct parsing, independent of the
// owning inode; a block its group's data bitmap marks free is never
// included (spec.md §4.9 step 2; §4.10's search/
// isearch read this set instead of walking the whole image each time).
func (a *Analyzer) DirectoryBlockIDs() []uint32 {
	out := make([]uint32, 0, len(a.dirBlocks))
	for blkid := range a.dirBlocks {
		out = append(out, blkid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ValidBlocks is the accumulated reachability bitmap.
func (a *Analyzer) ValidBlocks() Bitmap { return a.validBlocks }

// Summary reports free-vs-reachable counts for every block group, useful
// for a quick "does this look like a sane filesystem" sanity check
// (spec.md §4.9).
func (a *Analyzer) Summary() ([]GroupSummary, error) {
	groups, err := a.sb.EachBlkgrp()
	if err != nil {
		return nil, err
	}
	out := make([]GroupSummary, 0, len(groups))
	for _, bg := range groups {
		var reachable, free int
		base := bg.BG() * a.sb.BlocksPerGroup()
		for i := uint32(0); i < a.sb.BlocksPerGroup(); i++ {
			b := base + i
			if b >= a.sb.BlocksCountLo() {
				break
			}
			if ok, _ := a.validBlocks.Bit(int(b)); ok {
				reachable++
			}
			if isFree, err := bg.BlkidxFree(int(i)); err == nil && isFree {
				free++
			}
		}
		out = append(out, GroupSummary{BG: bg.BG(), Reachable: reachable, Free: free})
	}
	return out, nil
}

// GroupSummary is one block group's Summary row.
type GroupSummary struct {
	BG        uint32
	Reachable int
	Free      int
}
