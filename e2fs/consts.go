package e2fs

// Symbol tables shared by the Schemas in superblock.go, groupdescriptor.go,
// inode.go and directory.go. Grounded on original_source/e2fs/superblock.py,
// block_descriptor.py, inode.go and directory.py's `enums`/`flags` dicts,
// restated as Go maps per spec.md §3's "symbol names from enums and flags
// are also exposed as constants" (the name->value constants below; the
// value->name lookup tables live alongside each Schema).

// Superblock magic (spec.md §6: "magic 0xEF53 at offset 56").
const Ext2Magic = 0xEF53

// state (superblock.state)
const (
	ExtValidFS = 1
	ExtErrorFS = 2
)

// errors (superblock.errors: what to do on error)
const (
	ErrorsContinue   = 1
	ErrorsRoRemount  = 2
	ErrorsPanic      = 3
)

// creator_os
const (
	OsLinux   = 0
	OsHurd    = 1
	OsMasix   = 2
	OsFreeBSD = 3
	OsLites   = 4
)

// rev_level
const (
	GoodOldRev = 0
	DynamicRev = 1
)

// def_hash_version
const (
	HashLegacy         = 0
	HashHalfMD4        = 1
	HashTea            = 2
	HashLegacyUnsigned = 3
	HashHalfMD4Unsigned = 4
	HashTeaUnsigned    = 5
)

// feature_compat bits
const (
	FeatureCompatDirPrealloc  = 0x1
	FeatureCompatImagicInodes = 0x2
	FeatureCompatHasJournal   = 0x4
	FeatureCompatExtAttr      = 0x8
	FeatureCompatResizeIno    = 0x10
	FeatureCompatDirIndex     = 0x20
	FeatureCompatSparseSuper2 = 0x200
)

// feature_incompat bits
const (
	FeatureIncompatCompression = 0x1
	FeatureIncompatFiletype    = 0x2
	FeatureIncompatRecover     = 0x4
	FeatureIncompatJournalDev  = 0x8
	FeatureIncompatMetaBG      = 0x10
	FeatureIncompatExtents     = 0x40
	FeatureIncompat64Bit       = 0x80
	FeatureIncompatMMP         = 0x100
	FeatureIncompatFlexBG      = 0x200
	FeatureIncompatEAInode     = 0x400
	FeatureIncompatDirdata     = 0x1000
	FeatureIncompatCsumSeed    = 0x2000
	FeatureIncompatLargedir    = 0x4000
	FeatureIncompatInlineData  = 0x8000
	FeatureIncompatEncrypt     = 0x10000
)

// feature_ro_compat bits
const (
	FeatureRoCompatSparseSuper  = 0x1
	FeatureRoCompatLargeFile    = 0x2
	FeatureRoCompatHugeFile     = 0x8
	FeatureRoCompatGDTCsum      = 0x10
	FeatureRoCompatDirNlink     = 0x20
	FeatureRoCompatExtraIsize   = 0x40
	FeatureRoCompatQuota        = 0x100
	FeatureRoCompatBigalloc     = 0x200
	FeatureRoCompatMetadataCsum = 0x400
	FeatureRoCompatReadonly     = 0x1000
	FeatureRoCompatProject      = 0x2000
)

// mode file-type nibble (the high 4 bits of inode.mode)
const (
	SIFSOCK = 0xC000
	SIFLNK  = 0xA000
	SIFREG  = 0x8000
	SIFBLK  = 0x6000
	SIFDIR  = 0x4000
	SIFCHR  = 0x2000
	SIFIFO  = 0x1000
	STypeMask = 0xF000
)

// mode permission/special bits
const (
	SISUID = 0x0800
	SISGID = 0x0400
	SISVTX = 0x0200
	SIRUSR = 0x0100
	SIWUSR = 0x0080
	SIXUSR = 0x0040
	SIRGRP = 0x0020
	SIWGRP = 0x0010
	SIXGRP = 0x0008
	SIROTH = 0x0004
	SIWOTH = 0x0002
	SIXOTH = 0x0001
)

// inode.flags bits
const (
	InodeFlagSecrm      = 0x1
	InodeFlagUnrm       = 0x2
	InodeFlagCompr      = 0x4
	InodeFlagSync       = 0x8
	InodeFlagImmutable  = 0x10
	InodeFlagAppend     = 0x20
	InodeFlagNodump     = 0x40
	InodeFlagNoatime    = 0x80
	InodeFlagDirty      = 0x100
	InodeFlagComprblk   = 0x200
	InodeFlagNocompr    = 0x400
	InodeFlagEncrypt    = 0x800
	InodeFlagIndex      = 0x1000
	InodeFlagImagic     = 0x2000
	InodeFlagJournalData = 0x4000
	InodeFlagNotail     = 0x8000
	InodeFlagDirsync    = 0x10000
	InodeFlagTopdir     = 0x20000
	InodeFlagHugeFile   = 0x40000
	InodeFlagExtents    = 0x80000
	InodeFlagEAInode    = 0x200000
	InodeFlagEOFBlocks  = 0x400000
	InodeFlagInlineData = 0x10000000
	InodeFlagReserved   = 0x80000000
)

// block group descriptor flags (spec.md groundwork: block_descriptor.py)
const (
	BGInodeUninit = 0x1
	BGBlockUninit = 0x2
	BGInodeZeroed = 0x4
)

// directory entry file_type (spec.md §3)
const (
	FTUnknown  = 0
	FTRegFile  = 1
	FTDir      = 2
	FTChrdev   = 3
	FTBlkdev   = 4
	FTFifo     = 5
	FTSock     = 6
	FTSymlink  = 7
)

// GoodOldInodeSize is the only inode size this module supports (spec.md
// §4.5/§7: InodeUnsupported for anything else).
const GoodOldInodeSize = 128
