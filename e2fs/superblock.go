package e2fs

import (
	"bytes"
	"fmt"

	"github.com/google/uuid"
)

// superblockSchema is grounded field-for-field on
// original_source/e2fs/superblock.py's dfn list.
var superblockSchema = buildSuperblockSchema()

func buildSuperblockSchema() *Schema {
	s := SchemaFromSeq("Superblock", []FieldSpec{
		u32("inodes_count", "Total inode count."),
		u32("blocks_count_lo", "Lower 32-bits of total block count."),
		u32("r_blocks_count_lo", "Lower 32-bits of reserved block count."),
		u32("free_blocks_count_lo", "Lower 32-bits of free block count."),
		u32("free_inodes_count", "Free inode count."),
		u32("first_data_block", "First data block (0 for 1KiB, else 1)."),
		u32("log_block_size", "Block size is 1024 << this value."),
		u32("log_cluster_size", "Cluster size, if bigalloc is enabled."),
		u32("blocks_per_group", "Blocks per group."),
		u32("clusters_per_group", "Clusters per group, if bigalloc."),
		u32("inodes_per_group", "Inodes per group."),
		u32("mtime", "Mount time."),
		u32("wtime", "Write time."),
		u16("mnt_count", "Number of mounts since last fsck."),
		u16("max_mnt_count", "Max mounts before a fsck is required."),
		u16("magic", "Magic number, 0xEF53."),
		u16("state", "File system state."),
		u16("errors", "Behavior when detecting errors."),
		u16("minor_rev_level", "Minor revision level."),
		u32("lastcheck", "Time of last check."),
		u32("checkinterval", "Max time between checks."),
		u32("creator_os", "OS that created the filesystem."),
		u32("rev_level", "Revision level."),
		u16("def_resuid", "Default uid for reserved blocks."),
		u16("def_resgid", "Default gid for reserved blocks."),
		u32("first_ino", "First non-reserved inode."),
		u16("inode_size", "Size of inode structure, in bytes."),
		u16("block_group_nr", "Block group number of this superblock copy."),
		u32("feature_compat", "Compatible feature set flags."),
		u32("feature_incompat", "Incompatible feature set flags."),
		u32("feature_ro_compat", "Readonly-compatible feature set flags."),
		bytesField("uuid", 16, "128-bit UUID for volume."),
		bytesField("volume_name", 16, "Volume label."),
		bytesField("last_mounted", 64, "Directory where last mounted."),
		u32("algorithm_usage_bitmap", "For compression."),
		u8("prealloc_blocks", "Blocks to preallocate for files."),
		u8("prealloc_dir_blocks", "Blocks to preallocate for directories."),
		u16("reserved_gdt_blocks", "Reserved GDT blocks for growth."),
		bytesField("journal_uuid", 16, "UUID of journal superblock."),
		u32("journal_inum", "Inode number of journal file."),
		u32("journal_dev", "Device number of journal file."),
		u32("last_orphan", "Head of orphan inode list."),
		bytesField("hash_seed", 16, "HTREE hash seed."),
		u8("def_hash_version", "Default hash version for directories."),
		u8("jnl_backup_type", "Journal backup method."),
		u16("desc_size", "Size of group descriptors, if 64bit feature."),
		u32("default_mount_opts", "Default mount options."),
		u32("first_meta_bg", "First metablock block group."),
		u32("mkfs_time", "When the filesystem was created."),
		bytesField("jnl_blocks", 68, "Backup copy of journal inode's block array."),
		u32("blocks_count_hi", "Upper 32-bits of total block count."),
		u32("r_blocks_count_hi", "Upper 32-bits of reserved block count."),
		u32("free_blocks_count_hi", "Upper 32-bits of free block count."),
		u16("min_extra_isize", "Minimum extra inode size."),
		u16("want_extra_isize", "Desired extra inode size."),
		u32("flags", "Miscellaneous flags."),
		u16("raid_stride", "RAID stride."),
		u16("mmp_interval", "Seconds between MMP updates."),
		u64("mmp_block", "Block for multi-mount protection."),
		u32("raid_stripe_width", "Blocks on all data disks."),
		u8("log_groups_per_flex", "Groups per flex group, log2."),
		u8("checksum_type", "Metadata checksum algorithm."),
		u16("reserved_pad", "Padding."),
		u64("kbytes_written", "KiB written over filesystem lifetime."),
		u32("snapshot_inum", "Inode of active snapshot."),
		u32("snapshot_id", "Sequential snapshot id."),
		u64("snapshot_r_blocks_count", "Reserved blocks for snapshot."),
		u32("snapshot_list", "inode of on-disk snapshot list head."),
		u32("error_count", "Number of errors seen."),
		u32("first_error_time", "Time of first error."),
		u32("first_error_ino", "Inode involved in first error."),
		u64("first_error_block", "Block involved in first error."),
		bytesField("first_error_func", 32, "Function where first error occurred."),
		u32("first_error_line", "Line number of first error."),
		u32("last_error_time", "Time of most recent error."),
		u32("last_error_ino", "Inode involved in last error."),
		u32("last_error_line", "Line number of last error."),
		u64("last_error_block", "Block involved in last error."),
		bytesField("last_error_func", 32, "Function where last error occurred."),
		bytesField("mount_opts", 64, "Mount options, null terminated."),
		u32("usr_quota_inum", "User quota inode."),
		u32("grp_quota_inum", "Group quota inode."),
		u32("overhead_blocks", "Overhead blocks/clusters."),
		bytesField("backup_bgs", 8, "Groups with sparse_super2 SB backups."),
		u32("encrypt_algos", "Encryption algorithms in use."),
		bytesField("encrypt_pw_salt", 16, "Salt for string2key for encryption."),
		u32("lpf_ino", "Inode of lost+found."),
		u32("prj_quota_inum", "Inode for tracking project quota."),
		u32("checksum_seed", "crc32c seed for metadata_csum."),
		bytesField("end_of_block", 392, "Padding to the end of the block."),
		u32("checksum", "crc32c of the whole superblock."),
	})
	s.Enums["state"] = map[uint64]string{ExtValidFS: "EXT2_VALID_FS", ExtErrorFS: "EXT2_ERROR_FS"}
	s.Enums["errors"] = map[uint64]string{
		ErrorsContinue:  "EXT2_ERRORS_CONTINUE",
		ErrorsRoRemount: "EXT2_ERRORS_RO",
		ErrorsPanic:     "EXT2_ERRORS_PANIC",
	}
	s.Enums["creator_os"] = map[uint64]string{
		OsLinux: "EXT2_OS_LINUX", OsHurd: "EXT2_OS_HURD", OsMasix: "EXT2_OS_MASIX",
		OsFreeBSD: "EXT2_OS_FREEBSD", OsLites: "EXT2_OS_LITES",
	}
	s.Enums["rev_level"] = map[uint64]string{GoodOldRev: "EXT2_GOOD_OLD_REV", DynamicRev: "EXT2_DYNAMIC_REV"}
	s.Enums["def_hash_version"] = map[uint64]string{
		HashLegacy: "legacy", HashHalfMD4: "half_md4", HashTea: "tea",
		HashLegacyUnsigned: "legacy_unsigned", HashHalfMD4Unsigned: "half_md4_unsigned", HashTeaUnsigned: "tea_unsigned",
	}
	s.Flags["feature_compat"] = map[uint64]string{
		FeatureCompatDirPrealloc: "DIR_PREALLOC", FeatureCompatImagicInodes: "IMAGIC_INODES",
		FeatureCompatHasJournal: "HAS_JOURNAL", FeatureCompatExtAttr: "EXT_ATTR",
		FeatureCompatResizeIno: "RESIZE_INO", FeatureCompatDirIndex: "DIR_INDEX",
		FeatureCompatSparseSuper2: "SPARSE_SUPER2",
	}
	s.Flags["feature_incompat"] = map[uint64]string{
		FeatureIncompatCompression: "COMPRESSION", FeatureIncompatFiletype: "FILETYPE",
		FeatureIncompatRecover: "RECOVER", FeatureIncompatJournalDev: "JOURNAL_DEV",
		FeatureIncompatMetaBG: "META_BG", FeatureIncompatExtents: "EXTENTS",
		FeatureIncompat64Bit: "64BIT", FeatureIncompatMMP: "MMP",
		FeatureIncompatFlexBG: "FLEX_BG", FeatureIncompatEAInode: "EA_INODE",
		FeatureIncompatDirdata: "DIRDATA", FeatureIncompatCsumSeed: "CSUM_SEED",
		FeatureIncompatLargedir: "LARGEDIR", FeatureIncompatInlineData: "INLINE_DATA",
		FeatureIncompatEncrypt: "ENCRYPT",
	}
	s.Flags["feature_ro_compat"] = map[uint64]string{
		FeatureRoCompatSparseSuper: "SPARSE_SUPER", FeatureRoCompatLargeFile: "LARGE_FILE",
		FeatureRoCompatHugeFile: "HUGE_FILE", FeatureRoCompatGDTCsum: "GDT_CSUM",
		FeatureRoCompatDirNlink: "DIR_NLINK", FeatureRoCompatExtraIsize: "EXTRA_ISIZE",
		FeatureRoCompatQuota: "QUOTA", FeatureRoCompatBigalloc: "BIGALLOC",
		FeatureRoCompatMetadataCsum: "METADATA_CSUM", FeatureRoCompatReadonly: "READONLY",
		FeatureRoCompatProject: "PROJECT",
	}
	return s
}

// Superblock decodes the 1024-byte superblock (spec.md §4.4) and exposes
// derived geometry plus the navigation entry points (inode lookup, block
// group lookup, backup iteration).
type Superblock struct {
	*Record
	img *Image
}

// NewSuperblock constructs the primary superblock view at the default
// offset (1024). For backups at bg>0 use SuperblockAt.
func NewSuperblock(img *Image) *Superblock {
	return SuperblockAt(img, 1024)
}

// SuperblockAt constructs a superblock view at an arbitrary absolute
// offset — used both for the primary (offset 1024) and for every backup
// copy yielded by SuperBgs.
func SuperblockAt(img *Image, offset int64) *Superblock {
	return &Superblock{Record: superblockSchema.NewRecord(img, offset), img: img}
}

// Validate checks magic and the blocks_per_group/block_size invariant
// first (spec.md §3), then the generic enum/flag findings (spec.md §4.2).
// all=false stops at the first finding.
func (sb *Superblock) Validate(all bool) []string {
	sb.errs = nil
	magic, err := sb.Uint("magic")
	if err != nil {
		sb.addErr(err.Error())
		return sb.errs
	}
	if magic != Ext2Magic {
		sb.addErr(fmt.Sprintf("bad magic %#x, expected %#x", magic, Ext2Magic))
		if !all {
			return sb.errs
		}
	}
	bpg, _ := sb.Uint("blocks_per_group")
	if int(bpg) != 8*sb.BlockSize() {
		sb.addErr(fmt.Sprintf("blocks_per_group %d != 8*block_size %d", bpg, sb.BlockSize()))
		if !all {
			return sb.errs
		}
	}
	sb.errs = append(sb.errs, sb.ValidateEnumsAndFlags(all)...)
	return sb.errs
}

// BlockSize is block_size = 1 << (10 + log_block_size).
func (sb *Superblock) BlockSize() int {
	return 1 << (10 + sb.MustUint("log_block_size"))
}

// BlocksCountLo is the total block count (lower 32 bits).
func (sb *Superblock) BlocksCountLo() uint32 { return uint32(sb.MustUint("blocks_count_lo")) }

// BlocksPerGroup is blocks_per_group.
func (sb *Superblock) BlocksPerGroup() uint32 { return uint32(sb.MustUint("blocks_per_group")) }

// InodesPerGroup is inodes_per_group.
func (sb *Superblock) InodesPerGroup() uint32 { return uint32(sb.MustUint("inodes_per_group")) }

// InodeSize is inode_size.
func (sb *Superblock) InodeSize() uint16 { return uint16(sb.MustUint("inode_size")) }

// DescSize is desc_size (0 in ext2/3, meaning 32-byte descriptors).
func (sb *Superblock) DescSize() uint16 { return uint16(sb.MustUint("desc_size")) }

// ReservedGDTBlocks is reserved_gdt_blocks.
func (sb *Superblock) ReservedGDTBlocks() uint16 { return uint16(sb.MustUint("reserved_gdt_blocks")) }

// BGCount is bg_count = ceil(blocks_count_lo / blocks_per_group).
func (sb *Superblock) BGCount() uint32 {
	blocks, bpg := sb.BlocksCountLo(), sb.BlocksPerGroup()
	return (blocks + bpg - 1) / bpg
}

// BGSize is bg_size = blocks_per_group * block_size.
func (sb *Superblock) BGSize() int64 {
	return int64(sb.BlocksPerGroup()) * int64(sb.BlockSize())
}

// InodeCount is inode_count = inodes_per_group * bg_count.
func (sb *Superblock) InodeCount() uint32 {
	return sb.InodesPerGroup() * sb.BGCount()
}

// SparseSuper reports whether RO_COMPAT_SPARSE_SUPER is set.
func (sb *Superblock) SparseSuper() bool {
	flags, _ := sb.Uint("feature_ro_compat")
	return flags&FeatureRoCompatSparseSuper != 0
}

// Name is the ASCII-trimmed volume_name up to the first NUL.
func (sb *Superblock) Name() string {
	raw, err := sb.Bytes("volume_name")
	if err != nil {
		return ""
	}
	if i := bytes.IndexByte(raw, 0); i >= 0 {
		raw = raw[:i]
	}
	return string(raw)
}

// UUID decodes the 16-byte uuid field.
func (sb *Superblock) UUID() (uuid.UUID, error) {
	raw, err := sb.Bytes("uuid")
	if err != nil {
		return uuid.UUID{}, err
	}
	return uuid.FromBytes(raw)
}

// JournalUUID decodes the 16-byte journal_uuid field.
func (sb *Superblock) JournalUUID() (uuid.UUID, error) {
	raw, err := sb.Bytes("journal_uuid")
	if err != nil {
		return uuid.UUID{}, err
	}
	return uuid.FromBytes(raw)
}

// isPow reports whether n is an exact power of base (base > 1, n >= 1).
func isPow(n, base uint32) bool {
	if n < 1 {
		return false
	}
	for n%base == 0 {
		n /= base
	}
	return n == 1
}

// bgIsSuper is the sparse superblock rule of spec.md §4.4/§4.5: a group
// carries a backup iff its index is 0 or a power of 3, 5, or 7 (when
// SPARSE_SUPER is set; otherwise every group does).
func bgIsSuper(bg uint32, sparse bool) bool {
	if !sparse {
		return true
	}
	return bg == 0 || isPow(bg, 3) || isPow(bg, 5) || isPow(bg, 7)
}

// Blkgrp returns the BlockGroup view for group index bg.
func (sb *Superblock) Blkgrp(bg uint32) (*BlockGroup, error) {
	if bg >= sb.BGCount() {
		return nil, &BlkgrpOutOfRange{BG: bg, Count: sb.BGCount()}
	}
	return &BlockGroup{sb: sb, bg: bg}, nil
}

// EachBlkgrp returns every block group in the image, in order.
func (sb *Superblock) EachBlkgrp() ([]*BlockGroup, error) {
	out := make([]*BlockGroup, 0, sb.BGCount())
	for bg := uint32(0); bg < sb.BGCount(); bg++ {
		out = append(out, &BlockGroup{sb: sb, bg: bg})
	}
	return out, nil
}

// SuperBgs yields (BlockGroup, Superblock) pairs for every block group that
// carries a superblock backup (spec.md §4.4).
func (sb *Superblock) SuperBgs() ([]*SuperBackup, error) {
	sparse := sb.SparseSuper()
	var out []*SuperBackup
	for bg := uint32(0); bg < sb.BGCount(); bg++ {
		if !bgIsSuper(bg, sparse) {
			continue
		}
		offset := int64(bg) * sb.BGSize()
		if bg == 0 {
			offset = 1024
		}
		out = append(out, &SuperBackup{
			BG: &BlockGroup{sb: sb, bg: bg},
			SB: SuperblockAt(sb.img, offset),
		})
	}
	return out, nil
}

// SuperBackup pairs a block group with the superblock copy found there.
type SuperBackup struct {
	BG *BlockGroup
	SB *Superblock
}

// ValidBlkid checks b > 0 || zero_ok, b < blocks_count_lo, and that b lies
// beyond the inode table region of its own group (spec.md §4.4).
func (sb *Superblock) ValidBlkid(b uint32, zeroOK bool) bool {
	if b == 0 {
		return zeroOK
	}
	if b >= sb.BlocksCountLo() {
		return false
	}
	bg := b / sb.BlocksPerGroup()
	bgObj, err := sb.Blkgrp(bg)
	if err != nil {
		return false
	}
	itEnd := bgObj.InodeTableBlkid() + uint32(bgObj.InodeBlockCount())
	return b >= itEnd
}

// Inode looks up inode id, delegating to the owning block group.
func (sb *Superblock) Inode(id uint32) (*Inode, error) {
	if id < 1 || id >= sb.InodeCount() {
		return nil, &InodeOutOfRange{ID: id, Count: sb.InodeCount()}
	}
	bg, err := sb.Blkgrp((id - 1) / sb.InodesPerGroup())
	if err != nil {
		return nil, err
	}
	return bg.InodeIdx(id)
}

// BlkidFree consults the owning group's data bitmap.
func (sb *Superblock) BlkidFree(b uint32) (bool, error) {
	bg, err := sb.Blkgrp(b / sb.BlocksPerGroup())
	if err != nil {
		return false, err
	}
	idx := int(b - bg.bg*sb.BlocksPerGroup())
	set, err := bg.DataBitmap().Bit(idx)
	if err != nil {
		return false, err
	}
	return !set, nil
}

// InodeFree consults the owning group's inode bitmap.
func (sb *Superblock) InodeFree(id uint32) (bool, error) {
	bg, err := sb.Blkgrp((id - 1) / sb.InodesPerGroup())
	if err != nil {
		return false, err
	}
	idx := int((id - 1) % sb.InodesPerGroup())
	set, err := bg.InodeBitmap().Bit(idx)
	if err != nil {
		return false, err
	}
	return !set, nil
}

// descriptorBucket groups descriptors by the byte-identity of their raw
// content, for AllBlockDescriptors.
type descriptorBucket struct {
	Raw     []byte
	BGIndex uint32
	Copies  int
	Sources []uint32 // bg of each superblock backup this copy came from
}

// AllBlockDescriptors iterates every backup's descriptor table, bucketing
// descriptors for the same group index by byte-identity of their raw
// bytes and counting duplicates (spec.md §4.4), used to compare descriptor
// copies across backups and to detect a corrupted primary (spec.md §8
// scenario 4).
func (sb *Superblock) AllBlockDescriptors() (map[uint32][]*descriptorBucket, error) {
	backups, err := sb.SuperBgs()
	if err != nil {
		return nil, err
	}
	out := map[uint32][]*descriptorBucket{}
	for _, backup := range backups {
		descs, err := backup.BG.Descriptors()
		if err != nil {
			return nil, err
		}
		for _, d := range descs {
			raw, err := d.Raw()
			if err != nil {
				return nil, err
			}
			buckets := out[d.bgIndex]
			found := false
			for _, b := range buckets {
				if bytes.Equal(b.Raw, raw) {
					b.Copies++
					b.Sources = append(b.Sources, backup.BG.bg)
					found = true
					break
				}
			}
			if !found {
				out[d.bgIndex] = append(buckets, &descriptorBucket{
					Raw: raw, BGIndex: d.bgIndex, Copies: 1, Sources: []uint32{backup.BG.bg},
				})
			} else {
				out[d.bgIndex] = buckets
			}
		}
	}
	return out, nil
}
