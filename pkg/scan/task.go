package scan

type FileFormat string

const (
	FormatParquet FileFormat = "parquet"
	FormatORC     FileFormat = "orc"
	FormatAvro    FileFormat = "avro"
)

// DataFile describes one physical data file of a table.
type DataFile struct {
	Path        string     `json:"path"`
	Format      FileFormat `json:"format"`
	Partition   string     `json:"partition,omitempty"`
	RecordCount int64      `json:"record_count"`
	SizeBytes   int64      `json:"file_size_in_bytes"`
}

// FileScanTask is the part of a data file a scan reads, plus the number of
// delete files that apply to it. Planning only reads tasks; identity is the
// pointer.
type FileScanTask struct {
	File        DataFile `json:"file"`
	Start       int64    `json:"start"`
	TaskLength  int64    `json:"length"`
	DeleteFiles int      `json:"delete_files,omitempty"`
}

// NewFileScanTask returns a task covering the whole file.
func NewFileScanTask(file DataFile, deleteFiles int) *FileScanTask {
	return &FileScanTask{File: file, TaskLength: file.SizeBytes, DeleteFiles: deleteFiles}
}

// Length is the number of bytes the task covers.
func (t *FileScanTask) Length() int64 {
	return t.TaskLength
}
