package strategy

import (
	"iter"
	"math"

	"rewriteplan/pkg/binpack"
	"rewriteplan/pkg/planerr"
	"rewriteplan/pkg/scan"
	"rewriteplan/pkg/table"
)

const BinPackName = "BINPACK"

const (
	// TargetFileSizeBytes is the size rewritten files aim for. Defaults to the
	// table's write.target-file-size-bytes property.
	TargetFileSizeBytes = "target-file-size-bytes"
	// MinFileSizeBytes: files below this size are rewritten. Defaults to 75%
	// of the target.
	MinFileSizeBytes = "min-file-size-bytes"
	// MaxFileSizeBytes: files above this size are rewritten. Defaults to 180%
	// of the target.
	MaxFileSizeBytes = "max-file-size-bytes"
	// MinInputFiles is the smallest number of files worth a rewrite group.
	MinInputFiles = "min-input-files"
	// MaxFileGroupSizeBytes bounds the bytes of a single rewrite group.
	MaxFileGroupSizeBytes = "max-file-group-size-bytes"
	// DeleteFileThreshold: files with at least this many delete files are
	// rewritten regardless of size.
	DeleteFileThreshold = "delete-file-threshold"
)

const (
	minFileSizeDefaultRatio      = 0.75
	maxFileSizeDefaultRatio      = 1.80
	minInputFilesDefault         = 5
	maxFileGroupSizeBytesDefault = int64(100) * 1024 * 1024 * 1024
	deleteFileThresholdDefault   = math.MaxInt32
)

var binPackOptions = optionSet{
	TargetFileSizeBytes,
	MinFileSizeBytes,
	MaxFileSizeBytes,
	MinInputFiles,
	MaxFileGroupSizeBytes,
	DeleteFileThreshold,
}

// BinPackValidOptions lists the options of the size-based strategy.
func BinPackValidOptions() []string {
	return union(binPackOptions)
}

// BinPackStrategy rewrites files whose size is outside [min, max] and packs
// them into groups bounded by the maximum group size.
type BinPackStrategy struct {
	table               table.Table
	targetFileSize      int64
	minFileSize         int64
	maxFileSize         int64
	minInputFiles       int
	maxGroupSize        int64
	deleteFileThreshold int
}

// NewBinPackStrategy validates options for tbl and returns the configured
// strategy.
func NewBinPackStrategy(tbl table.Table, options map[string]string) (*BinPackStrategy, error) {
	name := tableName(tbl)
	if err := checkKeys(BinPackName, name, options, BinPackValidOptions()); err != nil {
		return nil, err
	}
	return newBinPack(BinPackName, tbl, options)
}

// newBinPack parses and validates the size options. strategy names the
// strategy reported in errors, which is the wrapping strategy when called
// from one.
func newBinPack(strategy string, tbl table.Table, options map[string]string) (*BinPackStrategy, error) {
	if tbl == nil {
		return nil, planerr.Configf(strategy, tableName(tbl), "no table to plan for")
	}
	name := tbl.Name()

	tableTarget, err := table.TargetFileSize(tbl)
	if err != nil {
		return nil, planerr.ConfigWrap(strategy, name, err, "cannot read target file size")
	}

	p := optionParser{strategy: strategy, table: name, options: options}
	s := &BinPackStrategy{table: tbl}
	s.targetFileSize = p.asLong(TargetFileSizeBytes, tableTarget)
	s.minFileSize = p.asLong(MinFileSizeBytes, int64(float64(s.targetFileSize)*minFileSizeDefaultRatio))
	s.maxFileSize = p.asLong(MaxFileSizeBytes, int64(float64(s.targetFileSize)*maxFileSizeDefaultRatio))
	s.minInputFiles = p.asInt(MinInputFiles, minInputFilesDefault)
	s.maxGroupSize = p.asLong(MaxFileGroupSizeBytes, maxFileGroupSizeBytesDefault)
	s.deleteFileThreshold = p.asInt(DeleteFileThreshold, deleteFileThresholdDefault)
	if p.err != nil {
		return nil, p.err
	}

	if err := s.validate(strategy); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *BinPackStrategy) validate(strategy string) error {
	name := s.table.Name()
	switch {
	case s.minFileSize < 0:
		return planerr.Configf(strategy, name, "cannot set %s to a negative number, %d < 0",
			MinFileSizeBytes, s.minFileSize)
	case s.targetFileSize <= s.minFileSize:
		return planerr.Configf(strategy, name, "cannot set %s greater than or equal to %s, %d >= %d",
			MinFileSizeBytes, TargetFileSizeBytes, s.minFileSize, s.targetFileSize)
	case s.maxFileSize <= s.targetFileSize:
		return planerr.Configf(strategy, name, "cannot set %s less than or equal to %s, %d <= %d",
			MaxFileSizeBytes, TargetFileSizeBytes, s.maxFileSize, s.targetFileSize)
	case s.minInputFiles <= 0:
		return planerr.Configf(strategy, name, "cannot set %s to a non-positive number, %d <= 0",
			MinInputFiles, s.minInputFiles)
	case s.maxGroupSize <= 0:
		return planerr.Configf(strategy, name, "cannot set %s to a non-positive number, %d <= 0",
			MaxFileGroupSizeBytes, s.maxGroupSize)
	case s.deleteFileThreshold < 0:
		return planerr.Configf(strategy, name, "cannot set %s to a negative number, %d < 0",
			DeleteFileThreshold, s.deleteFileThreshold)
	}
	return nil
}

func (s *BinPackStrategy) Name() string { return BinPackName }

func (s *BinPackStrategy) ValidOptions() []string { return BinPackValidOptions() }

func (s *BinPackStrategy) Table() table.Table       { return s.table }
func (s *BinPackStrategy) TargetFileSize() int64    { return s.targetFileSize }
func (s *BinPackStrategy) MinFileSize() int64       { return s.minFileSize }
func (s *BinPackStrategy) MaxFileSize() int64       { return s.maxFileSize }
func (s *BinPackStrategy) MinInputFiles() int       { return s.minInputFiles }
func (s *BinPackStrategy) MaxGroupSize() int64      { return s.maxGroupSize }
func (s *BinPackStrategy) DeleteFileThreshold() int { return s.deleteFileThreshold }

// SelectFilesToRewrite lazily keeps mis-sized files and files with too many
// deletes.
func (s *BinPackStrategy) SelectFilesToRewrite(tasks iter.Seq[*scan.FileScanTask]) iter.Seq[*scan.FileScanTask] {
	return func(yield func(*scan.FileScanTask) bool) {
		for t := range tasks {
			if s.wrongSize(t) || s.tooManyDeletes(t) {
				if !yield(t) {
					return
				}
			}
		}
	}
}

// PlanFileGroups packs tasks into groups of at most the maximum group size
// and drops groups too small to be worth rewriting.
func (s *BinPackStrategy) PlanFileGroups(tasks iter.Seq[*scan.FileScanTask]) iter.Seq[[]*scan.FileScanTask] {
	groups := binpack.Pack(tasks, (*scan.FileScanTask).Length, binpack.Options{
		TargetWeight: s.maxGroupSize,
		Lookback:     1,
	})

	return func(yield func([]*scan.FileScanTask) bool) {
		for g := range groups {
			if s.worthRewriting(g) {
				if !yield(g) {
					return
				}
			}
		}
	}
}

func (s *BinPackStrategy) wrongSize(t *scan.FileScanTask) bool {
	return t.Length() < s.minFileSize || t.Length() > s.maxFileSize
}

func (s *BinPackStrategy) tooManyDeletes(t *scan.FileScanTask) bool {
	return t.DeleteFiles >= s.deleteFileThreshold
}

func (s *BinPackStrategy) worthRewriting(group []*scan.FileScanTask) bool {
	size := groupSize(group)
	switch {
	case len(group) >= s.minInputFiles:
		return true
	case len(group) > 1 && size > s.targetFileSize:
		return true
	case size > s.maxFileSize:
		return true
	}
	for _, t := range group {
		if s.tooManyDeletes(t) {
			return true
		}
	}
	return false
}

func groupSize(group []*scan.FileScanTask) int64 {
	var size int64
	for _, t := range group {
		size += t.Length()
	}
	return size
}
