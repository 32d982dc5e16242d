package transcript

import (
	"bufio"
	"fmt"
	"io"

	client "github.com/relativitydev/exportclient"
)

// TextWriter writes the console transcript:
//
//	RunId <id> will return <n> documents
//
//	Got block of <n> documents
//
//	<field>: <value>
//	...
//
//	Block complete
//
//	All blocks complete
//
// Every line is followed by a blank line except field lines, which are
// grouped per row.
type TextWriter struct {
	w *bufio.Writer
}

// NewTextWriter creates a TextWriter on w.
func NewTextWriter(w io.Writer) *TextWriter {
	return &TextWriter{w: bufio.NewWriter(w)}
}

var _ client.Emitter = (*TextWriter)(nil)

// RunStarted writes the run header and flushes it.
func (t *TextWriter) RunStarted(run *client.ExportRun) error {
	if _, err := fmt.Fprintf(t.w, "RunId %s will return %d documents\n\n", run.ID(), run.RecordCount()); err != nil {
		return err
	}
	return t.w.Flush()
}

// BlockStarted writes the block header.
func (t *TextWriter) BlockStarted(_, rows int) error {
	_, err := fmt.Fprintf(t.w, "Got block of %d documents\n\n", rows)
	return err
}

// RowStarted does nothing; rows are separated when they end.
func (t *TextWriter) RowStarted(int, client.Row) error { return nil }

// Field writes one "name: value" line.
func (t *TextWriter) Field(name string, value any) error {
	_, err := fmt.Fprintf(t.w, "%s: %s\n", name, FormatValue(value))
	return err
}

// RowDone ends the row with a blank line.
func (t *TextWriter) RowDone() error {
	_, err := t.w.WriteString("\n")
	return err
}

// BlockDone writes the block marker and flushes, so a block is visible as
// soon as it is complete.
func (t *TextWriter) BlockDone() error {
	if _, err := t.w.WriteString("Block complete\n\n"); err != nil {
		return err
	}
	return t.w.Flush()
}

// RunDone writes the final marker and flushes.
func (t *TextWriter) RunDone() error {
	if _, err := t.w.WriteString("All blocks complete\n\n"); err != nil {
		return err
	}
	return t.w.Flush()
}
