package scan

import (
	"fmt"
	"io"
	"iter"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/linkedin/goavro/v2"

	"rewriteplan/pkg/planerr"
)

// manifestSchema is the Avro record stored per data file in a manifest.
const manifestSchema = `{
  "type": "record",
  "name": "manifest_entry",
  "fields": [
    {"name": "file_path", "type": "string"},
    {"name": "file_format", "type": "string"},
    {"name": "partition", "type": "string", "default": ""},
    {"name": "record_count", "type": "long"},
    {"name": "file_size_in_bytes", "type": "long"},
    {"name": "delete_files", "type": "int", "default": 0}
  ]
}`

// ManifestReader decodes manifest entries lazily, one Avro record per task.
// Errors stop iteration and are reported by Err, like bufio.Scanner.
type ManifestReader struct {
	ocf     *goavro.OCFReader
	closers []io.Closer
	err     error
	used    bool
}

func NewManifestReader(r io.Reader) (*ManifestReader, error) {
	ocf, err := goavro.NewOCFReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", planerr.ErrInvalidManifest, err)
	}
	return &ManifestReader{ocf: ocf}, nil
}

// OpenManifest opens a manifest file. Files ending in .zst are zstd
// compressed.
func OpenManifest(path string) (*ManifestReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}

	var (
		r       io.Reader = f
		closers           = []io.Closer{f}
	)
	if strings.HasSuffix(path, ".zst") {
		dec, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to open zstd manifest: %w", err)
		}
		rc := dec.IOReadCloser()
		r = rc
		closers = append([]io.Closer{rc}, closers...)
	}

	mr, err := NewManifestReader(r)
	if err != nil {
		for _, c := range closers {
			c.Close()
		}
		return nil, err
	}
	mr.closers = closers
	return mr, nil
}

// Tasks yields the manifest entries. The sequence is single use.
func (m *ManifestReader) Tasks() iter.Seq[*FileScanTask] {
	return func(yield func(*FileScanTask) bool) {
		if m.used {
			m.err = fmt.Errorf("%w: manifest already consumed", planerr.ErrInvalidManifest)
			return
		}
		m.used = true

		for m.ocf.Scan() {
			datum, err := m.ocf.Read()
			if err != nil {
				m.err = fmt.Errorf("%w: %w", planerr.ErrInvalidManifest, err)
				return
			}
			task, err := decodeEntry(datum)
			if err != nil {
				m.err = err
				return
			}
			if !yield(task) {
				return
			}
		}
		if err := m.ocf.Err(); err != nil {
			m.err = fmt.Errorf("%w: %w", planerr.ErrInvalidManifest, err)
		}
	}
}

func (m *ManifestReader) Err() error {
	return m.err
}

func (m *ManifestReader) Close() error {
	var first error
	for _, c := range m.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	m.closers = nil
	return first
}

// ReadManifest decodes every entry of r.
func ReadManifest(r io.Reader) ([]*FileScanTask, error) {
	mr, err := NewManifestReader(r)
	if err != nil {
		return nil, err
	}
	var tasks []*FileScanTask
	for t := range mr.Tasks() {
		tasks = append(tasks, t)
	}
	return tasks, mr.Err()
}

// WriteManifest encodes tasks as an Avro object container file.
func WriteManifest(w io.Writer, tasks []*FileScanTask) error {
	ocf, err := goavro.NewOCFWriter(goavro.OCFConfig{W: w, Schema: manifestSchema})
	if err != nil {
		return fmt.Errorf("failed to create manifest writer: %w", err)
	}

	records := make([]map[string]any, 0, len(tasks))
	for _, t := range tasks {
		records = append(records, map[string]any{
			"file_path":          t.File.Path,
			"file_format":        string(t.File.Format),
			"partition":          t.File.Partition,
			"record_count":       t.File.RecordCount,
			"file_size_in_bytes": t.File.SizeBytes,
			"delete_files":       int32(t.DeleteFiles),
		})
	}
	if len(records) == 0 {
		return nil
	}
	if err := ocf.Append(records); err != nil {
		return fmt.Errorf("failed to append manifest entries: %w", err)
	}
	return nil
}

// CreateManifest writes tasks to a new file at path, zstd compressed when
// path ends in .zst.
func CreateManifest(path string, tasks []*FileScanTask) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create manifest: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if !strings.HasSuffix(path, ".zst") {
		return WriteManifest(f, tasks)
	}

	enc, err := zstd.NewWriter(f)
	if err != nil {
		return fmt.Errorf("failed to create zstd writer: %w", err)
	}
	if err := WriteManifest(enc, tasks); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

func decodeEntry(datum any) (*FileScanTask, error) {
	rec, ok := datum.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected entry %T", planerr.ErrInvalidManifest, datum)
	}

	path, _ := rec["file_path"].(string)
	if path == "" {
		return nil, fmt.Errorf("%w: entry without file_path", planerr.ErrInvalidManifest)
	}
	format, _ := rec["file_format"].(string)
	partition, _ := rec["partition"].(string)
	records, _ := rec["record_count"].(int64)
	size, ok := rec["file_size_in_bytes"].(int64)
	if !ok || size < 0 {
		return nil, fmt.Errorf("%w: %s: bad file_size_in_bytes", planerr.ErrInvalidManifest, path)
	}
	deletes, _ := rec["delete_files"].(int32)

	return NewFileScanTask(DataFile{
		Path:        path,
		Format:      FileFormat(strings.ToLower(format)),
		Partition:   partition,
		RecordCount: records,
		SizeBytes:   size,
	}, int(deletes)), nil
}
