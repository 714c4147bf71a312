package e2fs

import (
	"fmt"
)

// BlockGroup computes bitmap/inode-table positions and enumerates
// descriptors and data blocks for one block group of a Superblock
// (spec.md §4.5). Grounded on original_source/e2fs/block_group.py.
type BlockGroup struct {
	sb *Superblock
	bg uint32
}

// BG returns the group's index.
func (g *BlockGroup) BG() uint32 { return g.bg }

// IsSuper reports whether this group carries a superblock+descriptor
// backup, per the sparse-superblock rule (spec.md §4.4).
func (g *BlockGroup) IsSuper() bool {
	return bgIsSuper(g.bg, g.sb.SparseSuper())
}

// BitmapOffset is the block offset (from the start of the group) of the
// group's data bitmap: 1 + bg_desc_blocks_count + reserved_gdt_blocks when
// IsSuper, else 0 (spec.md §4.5).
func (g *BlockGroup) BitmapOffset() uint32 {
	if g.IsSuper() {
		return 1 + uint32(g.BGDescBlocksCount()) + uint32(g.sb.ReservedGDTBlocks())
	}
	return 0
}

func (g *BlockGroup) groupBase() int64 {
	return int64(g.bg) * g.sb.BGSize()
}

// DataBitmap returns the group's block-usage bitmap, block_size bytes
// positioned at bg*bg_size + (bitmap_offset+0)*block_size.
func (g *BlockGroup) DataBitmap() Bitmap {
	off := g.groupBase() + int64(g.BitmapOffset())*int64(g.sb.BlockSize())
	return NewStreamBitmap(g.sb.img, off, g.sb.BlockSize())
}

// InodeBitmap returns the group's inode-usage bitmap, inodes_per_group/8
// bytes positioned at bg*bg_size + (bitmap_offset+1)*block_size.
func (g *BlockGroup) InodeBitmap() Bitmap {
	off := g.groupBase() + int64(g.BitmapOffset()+1)*int64(g.sb.BlockSize())
	return NewStreamBitmap(g.sb.img, off, int(g.sb.InodesPerGroup())/8)
}

// InodeTableBlkid is bg*blocks_per_group + bitmap_offset + 2.
func (g *BlockGroup) InodeTableBlkid() uint32 {
	return g.bg*g.sb.BlocksPerGroup() + g.BitmapOffset() + 2
}

// descriptorSize is 64 when the superblock's desc_size says so, else 32.
func (g *BlockGroup) descriptorSize() int {
	if g.sb.DescSize() > 32 {
		return 64
	}
	return 32
}

// BGDescBlocksCount is ceil(bg_count * descriptor_size / block_size).
func (g *BlockGroup) BGDescBlocksCount() int {
	bs := g.sb.BlockSize()
	n := int(g.sb.BGCount()) * g.descriptorSize()
	return (n + bs - 1) / bs
}

// InodeBlockCount is ceil(inode_size * inodes_per_group / block_size).
func (g *BlockGroup) InodeBlockCount() int {
	bs := g.sb.BlockSize()
	n := int(g.sb.InodeSize()) * int(g.sb.InodesPerGroup())
	return (n + bs - 1) / bs
}

// EachDataBlkid yields every block id in this group that lies past the
// inode table, up to the image's or the group's own end, whichever is
// smaller.
func (g *BlockGroup) EachDataBlkid() []uint32 {
	var out []uint32
	blkid := g.InodeTableBlkid() + uint32(g.InodeBlockCount())
	limit := g.sb.BlocksCountLo()
	groupEnd := (g.bg + 1) * g.sb.BlocksPerGroup()
	if groupEnd < limit {
		limit = groupEnd
	}
	for blkid < limit {
		out = append(out, blkid)
		blkid++
	}
	return out
}

// BlkidxFree reports whether the index-th data block of this group is
// free, per the group's data bitmap.
func (g *BlockGroup) BlkidxFree(index int) (bool, error) {
	set, err := g.DataBitmap().Bit(index)
	if err != nil {
		return false, err
	}
	return !set, nil
}

// InodeIdx constructs the Inode view for inode id within this group:
// index = (id-1) % inodes_per_group, at inode_table_blkid*block_size +
// index*inode_size. Only inode_size==128 is supported (spec.md §4.5/§7).
func (g *BlockGroup) InodeIdx(id uint32) (*Inode, error) {
	if g.sb.InodeSize() != GoodOldInodeSize {
		return nil, &InodeUnsupported{Size: g.sb.InodeSize()}
	}
	index := (id - 1) % g.sb.InodesPerGroup()
	off := int64(g.InodeTableBlkid())*int64(g.sb.BlockSize()) + int64(index)*int64(g.sb.InodeSize())
	return &Inode{
		Record: inode128Schema.NewRecord(g.sb.img, off),
		sb:     g.sb,
		bg:     g,
		id:     id,
	}, nil
}

// Descriptors yields every descriptor in this group's descriptor table (at
// bg*bg_size + block_size), choosing the 32B or 64B layout by
// sb.desc_size > 32. Only valid when IsSuper (spec.md §4.5).
func (g *BlockGroup) Descriptors() ([]*GroupDescriptor, error) {
	if !g.IsSuper() {
		return nil, fmt.Errorf("no superblock/descriptor table at bg#%d", g.bg)
	}
	schema := groupDescriptor32Schema
	size := 32
	if g.sb.DescSize() > 32 {
		schema = groupDescriptor64Schema
		size = 64
	}
	base := g.groupBase() + int64(g.sb.BlockSize())
	out := make([]*GroupDescriptor, 0, g.sb.BGCount())
	for i := uint32(0); i < g.sb.BGCount(); i++ {
		out = append(out, &GroupDescriptor{
			Record:  schema.NewRecord(g.sb.img, base+int64(i)*int64(size)),
			bgIndex: i,
			srcBG:   g.bg,
		})
	}
	return out, nil
}
