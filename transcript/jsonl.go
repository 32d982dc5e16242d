package transcript

import (
	"encoding/json"
	"io"

	client "github.com/relativitydev/exportclient"
)

// RunRecord is the first line written by JSONLinesWriter.
type RunRecord struct {
	RunID       string   `json:"run_id"`
	RecordCount int64    `json:"record_count"`
	Fields      []string `json:"fields"`
}

// RowRecord is one exported row.
type RowRecord struct {
	Block      int            `json:"block"`
	Row        int            `json:"row"`
	ArtifactID int            `json:"artifact_id"`
	Fields     map[string]any `json:"fields"`
}

// JSONLinesWriter writes one JSON object per line: a RunRecord, then one
// RowRecord per row. Field values keep their JSON types.
type JSONLinesWriter struct {
	enc     *json.Encoder
	block   int
	current *RowRecord
}

// NewJSONLinesWriter creates a JSONLinesWriter on w.
func NewJSONLinesWriter(w io.Writer) *JSONLinesWriter {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &JSONLinesWriter{enc: enc}
}

var _ client.Emitter = (*JSONLinesWriter)(nil)

// RunStarted writes the RunRecord.
func (j *JSONLinesWriter) RunStarted(run *client.ExportRun) error {
	fields := make([]string, run.FieldCount())
	for i := range fields {
		fields[i] = run.Field(i).Name
	}
	return j.enc.Encode(RunRecord{
		RunID:       run.ID().String(),
		RecordCount: run.RecordCount(),
		Fields:      fields,
	})
}

// BlockStarted remembers the block number for the rows that follow.
func (j *JSONLinesWriter) BlockStarted(number, _ int) error {
	j.block = number
	return nil
}

// RowStarted begins a RowRecord.
func (j *JSONLinesWriter) RowStarted(index int, row client.Row) error {
	j.current = &RowRecord{
		Block:      j.block,
		Row:        index,
		ArtifactID: row.ArtifactID,
		Fields:     make(map[string]any, len(row.Values)),
	}
	return nil
}

// Field adds a value to the current row.
func (j *JSONLinesWriter) Field(name string, value any) error {
	if j.current != nil {
		j.current.Fields[name] = value
	}
	return nil
}

// RowDone writes the current row as one line.
func (j *JSONLinesWriter) RowDone() error {
	if j.current == nil {
		return nil
	}
	err := j.enc.Encode(j.current)
	j.current = nil
	return err
}

// BlockDone does nothing; rows are written as they end.
func (j *JSONLinesWriter) BlockDone() error { return nil }

// RunDone does nothing; the run ends with its last row.
func (j *JSONLinesWriter) RunDone() error { return nil }
