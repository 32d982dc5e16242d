package transcript

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	client "github.com/relativitydev/exportclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testRunID = uuid.MustParse("5f0c7d8e-2b1a-4c3d-9e8f-0a1b2c3d4e5f")

func testRun() *client.ExportRun {
	return client.NewExportRun(1234567, testRunID, 3,
		[]client.FieldMetadata{
			{Name: "Control Number", FieldType: client.FieldTypeFixedLengthText},
			{Name: "Extracted Text", FieldType: client.FieldTypeLongText},
		},
		[]client.FieldRef{{Name: "Control Number"}, {Name: "Extracted Text"}},
	)
}

// replay drives an emitter through a run of two blocks.
func replay(t *testing.T, e client.Emitter) {
	t.Helper()
	run := testRun()
	blocks := [][]client.Row{
		{
			{ArtifactID: 1001, Values: []any{"DOC0001", "first <text>"}},
			{ArtifactID: 1002, Values: []any{"DOC0002", "second"}},
		},
		{
			{ArtifactID: 1003, Values: []any{"DOC0003", nil}},
		},
	}

	require.NoError(t, e.RunStarted(run))
	for b, rows := range blocks {
		require.NoError(t, e.BlockStarted(b+1, len(rows)))
		for i, row := range rows {
			require.NoError(t, e.RowStarted(i, row))
			for f, value := range row.Values {
				require.NoError(t, e.Field(run.Field(f).Name, value))
			}
			require.NoError(t, e.RowDone())
		}
		require.NoError(t, e.BlockDone())
	}
	require.NoError(t, e.RunDone())
}

func TestTextWriter(t *testing.T) {
	var buf bytes.Buffer
	replay(t, NewTextWriter(&buf))

	want := "RunId 5f0c7d8e-2b1a-4c3d-9e8f-0a1b2c3d4e5f will return 3 documents\n\n" +
		"Got block of 2 documents\n\n" +
		"Control Number: DOC0001\n" +
		"Extracted Text: first <text>\n" +
		"\n" +
		"Control Number: DOC0002\n" +
		"Extracted Text: second\n" +
		"\n" +
		"Block complete\n\n" +
		"Got block of 1 documents\n\n" +
		"Control Number: DOC0003\n" +
		"Extracted Text: \n" +
		"\n" +
		"Block complete\n\n" +
		"All blocks complete\n\n"
	assert.Equal(t, want, buf.String())
}

func TestTextWriter_HeaderFlushedImmediately(t *testing.T) {
	var buf bytes.Buffer
	w := NewTextWriter(&buf)

	require.NoError(t, w.RunStarted(testRun()))
	assert.Contains(t, buf.String(), "RunId 5f0c7d8e")

	require.NoError(t, w.BlockStarted(1, 2))
	assert.NotContains(t, buf.String(), "Got block", "block output is buffered until the block completes")
}

func TestTextWriter_NumbersInPlainNotation(t *testing.T) {
	var row client.Row
	require.NoError(t, json.Unmarshal([]byte(`{"Values":["DOC1",1234567,{"ArtifactID":1038052},2500000.5]}`), &row))

	var buf bytes.Buffer
	w := NewTextWriter(&buf)
	for _, value := range row.Values {
		require.NoError(t, w.Field("f", value))
	}
	require.NoError(t, w.BlockDone())

	assert.Equal(t, "f: DOC1\nf: 1234567\nf: 1038052\nf: 2500000.5\nBlock complete\n\n", buf.String())
}

func TestJSONLinesWriter(t *testing.T) {
	var buf bytes.Buffer
	replay(t, NewJSONLinesWriter(&buf))
	out := buf.String()
	assert.Contains(t, out, `"first <text>"`, "HTML characters are not escaped")

	scanner := bufio.NewScanner(strings.NewReader(out))
	require.True(t, scanner.Scan())

	var run RunRecord
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &run))
	assert.Equal(t, RunRecord{
		RunID:       testRunID.String(),
		RecordCount: 3,
		Fields:      []string{"Control Number", "Extracted Text"},
	}, run)

	var rows []RowRecord
	for scanner.Scan() {
		var row RowRecord
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &row))
		rows = append(rows, row)
	}
	require.NoError(t, scanner.Err())
	require.Len(t, rows, 3)

	assert.Equal(t, 1, rows[0].Block)
	assert.Equal(t, 0, rows[0].Row)
	assert.Equal(t, 1001, rows[0].ArtifactID)
	assert.Equal(t, "first <text>", rows[0].Fields["Extracted Text"])
	assert.Equal(t, 2, rows[2].Block)
	assert.Equal(t, 0, rows[2].Row)
	assert.Nil(t, rows[2].Fields["Extracted Text"])
	assert.Contains(t, rows[2].Fields, "Extracted Text")
}

func TestNew(t *testing.T) {
	var buf bytes.Buffer

	e, err := New("TEXT", &buf)
	require.NoError(t, err)
	assert.IsType(t, &TextWriter{}, e)

	e, err = New("jsonl", &buf)
	require.NoError(t, err)
	assert.IsType(t, &JSONLinesWriter{}, e)

	_, err = New("xml", &buf)
	assert.ErrorContains(t, err, "supported: jsonl, text")

	assert.Equal(t, []string{"jsonl", "text"}, Formats())
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"nil", nil, ""},
		{"string", "plain", "plain"},
		{"number", float64(1003), "1003"},
		{"large whole number", float64(1234567), "1234567"},
		{"large decimal", 2500000.5, "2500000.5"},
		{"json number", json.Number("9007199254740993"), "9007199254740993"},
		{"object id", map[string]any{"ArtifactID": json.Number("1038052")}, "1038052"},
		{"bool", true, "true"},
		{"choice", map[string]any{"Name": "Responsive", "ArtifactID": float64(5)}, "Responsive"},
		{"object without name", map[string]any{"ArtifactID": float64(5)}, "5"},
		{"multiple choice", []any{map[string]any{"Name": "A"}, map[string]any{"Name": "B"}}, "A; B"},
		{"empty list", []any{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatValue(tt.value))
		})
	}
}
