package e2fs

// groupDescriptorSpecs32 and the 64B extension are grounded on
// original_source/e2fs/block_descriptor.py's BlockDescriptor32/64.
var groupDescriptorSpecs32 = []FieldSpec{
	u32("block_bitmap_lo", "Lower 32-bits of location of block bitmap."),
	u32("inode_bitmap_lo", "Lower 32-bits of location of inode bitmap."),
	u32("inode_table_lo", "Lower 32-bits of location of inode table."),
	u16("free_blocks_count_lo", "Lower 16-bits of free block count."),
	u16("free_inodes_count_lo", "Lower 16-bits of free inode count."),
	u16("used_dirs_count_lo", "Lower 16-bits of directory count."),
	u16("flags", "Block group flags."),
	u32("exclude_bitmap_lo", "Lower 32-bits of snapshot exclusion bitmap location."),
	u16("block_bitmap_csum_lo", "Lower 16-bits of block bitmap checksum."),
	u16("inode_bitmap_csum_lo", "Lower 16-bits of inode bitmap checksum."),
	u16("itable_unused_lo", "Lower 16-bits of unused inode count."),
	u16("checksum", "Group descriptor checksum."),
}

var groupDescriptorSpecs64Extra = []FieldSpec{
	u32("block_bitmap_hi", "Upper 32-bits of location of block bitmap."),
	u32("inode_bitmap_hi", "Upper 32-bits of location of inode bitmap."),
	u32("inode_table_hi", "Upper 32-bits of location of inode table."),
	u16("free_blocks_count_hi", "Upper 16-bits of free block count."),
	u16("free_inodes_count_hi", "Upper 16-bits of free inode count."),
	u16("used_dirs_count_hi", "Upper 16-bits of directory count."),
	u16("itable_unused_hi", "Upper 16-bits of unused inode count."),
	u32("exclude_bitmap_hi", "Upper 32-bits of snapshot exclusion bitmap location."),
	u16("block_bitmap_csum_hi", "Upper 16-bits of block bitmap checksum."),
	u16("inode_bitmap_csum_hi", "Upper 16-bits of inode bitmap checksum."),
	u32("pad", "Padding to 64 bytes."),
}

var groupDescriptor32Schema = SchemaFromSeq("GroupDescriptor32", groupDescriptorSpecs32)
var groupDescriptor64Schema = SchemaFromSeq("GroupDescriptor64",
	append(append([]FieldSpec{}, groupDescriptorSpecs32...), groupDescriptorSpecs64Extra...))

func init() {
	for _, s := range []*Schema{groupDescriptor32Schema, groupDescriptor64Schema} {
		s.Flags["flags"] = map[uint64]string{
			BGInodeUninit: "INODE_UNINIT",
			BGBlockUninit: "BLOCK_UNINIT",
			BGInodeZeroed: "INODE_ZEROED",
		}
	}
}

// GroupDescriptor decodes a 32B (ext2/3) or 64B (desc_size>32) block group
// descriptor (spec.md §3/§4.5): bitmap/table block ids and free counts.
type GroupDescriptor struct {
	*Record
	bgIndex uint32 // which group this descriptor describes
	srcBG   uint32 // which group's descriptor table this copy was read from
}

// BlockBitmapLo is block_bitmap_lo.
func (d *GroupDescriptor) BlockBitmapLo() uint32 { return uint32(d.MustUint("block_bitmap_lo")) }

// InodeBitmapLo is inode_bitmap_lo.
func (d *GroupDescriptor) InodeBitmapLo() uint32 { return uint32(d.MustUint("inode_bitmap_lo")) }

// InodeTableLo is inode_table_lo.
func (d *GroupDescriptor) InodeTableLo() uint32 { return uint32(d.MustUint("inode_table_lo")) }

// FreeBlocksCountLo is free_blocks_count_lo.
func (d *GroupDescriptor) FreeBlocksCountLo() uint16 {
	return uint16(d.MustUint("free_blocks_count_lo"))
}

// FreeInodesCountLo is free_inodes_count_lo.
func (d *GroupDescriptor) FreeInodesCountLo() uint16 {
	return uint16(d.MustUint("free_inodes_count_lo"))
}

// BGIndex is the group index this descriptor describes.
func (d *GroupDescriptor) BGIndex() uint32 { return d.bgIndex }

// SourceBG is the group whose descriptor table this particular copy was
// read from (may differ from BGIndex when reading a backup copy).
func (d *GroupDescriptor) SourceBG() uint32 { return d.srcBG }
