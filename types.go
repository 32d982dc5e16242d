package client

import (
	"fmt"

	"github.com/google/uuid"
)

// LongTextSentinel is the value the export API places in a row instead of a
// long-text value that exceeds the query's MaxCharactersForLongTextValues.
// Only a value exactly equal to it stands for an omitted value.
const LongTextSentinel = "#KCURA99DF2F0FEB88420388879F1282A55760#"

// ArtifactTypeDocument is the artifact type ID of documents.
const ArtifactTypeDocument = 10

// ObjectTypeRef selects the object type an export query runs against.
type ObjectTypeRef struct {
	ArtifactTypeID int `json:"ArtifactTypeID,omitempty" yaml:"artifact_type_id"`
}

// FieldRef names a field to retrieve. Either Name or ArtifactID identifies it.
type FieldRef struct {
	Name       string `json:"Name,omitempty" yaml:"name"`
	ArtifactID int    `json:"ArtifactID,omitempty" yaml:"artifact_id,omitempty"`
}

// String returns the field name, or its artifact ID if it has no name.
func (f FieldRef) String() string {
	if f.Name != "" {
		return f.Name
	}
	return fmt.Sprintf("field#%d", f.ArtifactID)
}

// ObjectRef identifies a single object (one row of an export).
type ObjectRef struct {
	ArtifactID int `json:"ArtifactID"`
}

// Query describes what an export retrieves.
type Query struct {
	// ObjectType selects the objects to export.
	ObjectType ObjectTypeRef `json:"ObjectType" yaml:"object_type"`

	// Fields lists the fields to retrieve, in output order. Must not be empty.
	Fields []FieldRef `json:"Fields" yaml:"fields"`

	// Condition optionally filters the exported objects.
	Condition string `json:"Condition,omitempty" yaml:"condition,omitempty"`

	// MaxCharactersForLongTextValues is the server-side inline limit for
	// long-text values. Longer values are replaced with LongTextSentinel.
	MaxCharactersForLongTextValues int `json:"MaxCharactersForLongTextValues" yaml:"max_characters_for_long_text_values"`
}

// Validate checks the query invariants.
func (q Query) Validate() error {
	if len(q.Fields) == 0 {
		return &ValidationError{Field: "Fields", Message: "query must name at least one field"}
	}
	for i, f := range q.Fields {
		if f.Name == "" && f.ArtifactID <= 0 {
			return &ValidationError{Field: fmt.Sprintf("Fields[%d]", i), Message: "field needs a name or artifact id"}
		}
	}
	if q.MaxCharactersForLongTextValues < 0 {
		return &ValidationError{Field: "MaxCharactersForLongTextValues", Message: "cannot be negative"}
	}
	return nil
}

// FieldType is the platform's field type name.
type FieldType string

const (
	FieldTypeFixedLengthText FieldType = "FixedLengthText"
	FieldTypeLongText        FieldType = "LongText"
	FieldTypeWholeNumber     FieldType = "WholeNumber"
	FieldTypeDecimal         FieldType = "Decimal"
	FieldTypeCurrency        FieldType = "Currency"
	FieldTypeDate            FieldType = "Date"
	FieldTypeYesNo           FieldType = "YesNo"
	FieldTypeSingleChoice    FieldType = "SingleChoice"
	FieldTypeMultipleChoice  FieldType = "MultipleChoice"
	FieldTypeSingleObject    FieldType = "SingleObject"
	FieldTypeMultipleObject  FieldType = "MultipleObject"
	FieldTypeUser            FieldType = "User"
	FieldTypeFile            FieldType = "File"
)

// FieldMetadata describes one column of an export run.
type FieldMetadata struct {
	Name       string    `json:"Name"`
	FieldType  FieldType `json:"FieldType"`
	ArtifactID int       `json:"ArtifactID,omitempty"`
}

// IsLongText reports whether values of this field may carry LongTextSentinel.
func (f FieldMetadata) IsLongText() bool {
	return f.FieldType == FieldTypeLongText
}

// ExportInitializationResults is the wire response of an initialize call.
type ExportInitializationResults struct {
	RunID       string          `json:"RunID"`
	RecordCount int64           `json:"RecordCount"`
	FieldData   []FieldMetadata `json:"FieldData"`
}

// Row is one exported object. Values are aligned with the run's fields.
type Row struct {
	ArtifactID int   `json:"ArtifactID"`
	Values     []any `json:"Values"`
}

// ResultBlock is one page of rows returned by a single fetch.
type ResultBlock struct {
	// Number is the 1-based position of the block within its run.
	Number int
	Rows   []Row
}

// Len returns the number of rows in the block.
func (b ResultBlock) Len() int { return len(b.Rows) }

// ExportRun is a server-tracked export started by ExportSession.Initialize.
// It is immutable once created.
type ExportRun struct {
	runID       uuid.UUID
	workspaceID int
	recordCount int64
	fields      []FieldMetadata
	refs        []FieldRef
	longText    []bool
}

// NewExportRun builds a run from an initialize response. refs are the fields
// the query requested, in the same order as fields.
func NewExportRun(workspaceID int, runID uuid.UUID, recordCount int64, fields []FieldMetadata, refs []FieldRef) *ExportRun {
	longText := make([]bool, len(fields))
	for i, f := range fields {
		longText[i] = f.IsLongText()
	}
	return &ExportRun{
		runID:       runID,
		workspaceID: workspaceID,
		recordCount: recordCount,
		fields:      append([]FieldMetadata(nil), fields...),
		refs:        append([]FieldRef(nil), refs...),
		longText:    longText,
	}
}

// ID returns the run identifier assigned by the server.
func (r *ExportRun) ID() uuid.UUID { return r.runID }

// WorkspaceID returns the workspace the run belongs to.
func (r *ExportRun) WorkspaceID() int { return r.workspaceID }

// RecordCount returns the number of records the server expects to return.
func (r *ExportRun) RecordCount() int64 { return r.recordCount }

// FieldCount returns the number of fields in each row.
func (r *ExportRun) FieldCount() int { return len(r.fields) }

// Field returns the metadata of the field at position i.
func (r *ExportRun) Field(i int) FieldMetadata { return r.fields[i] }

// Fields returns a copy of the run's field metadata.
func (r *ExportRun) Fields() []FieldMetadata {
	return append([]FieldMetadata(nil), r.fields...)
}

// FieldRef returns the reference used to stream the field at position i.
func (r *ExportRun) FieldRef(i int) FieldRef { return r.refs[i] }

// IsLongText reports whether position i is a long-text field.
func (r *ExportRun) IsLongText(i int) bool {
	return i >= 0 && i < len(r.longText) && r.longText[i]
}

// LongTextPositions returns the field positions flagged long-text.
func (r *ExportRun) LongTextPositions() []int {
	var positions []int
	for i, lt := range r.longText {
		if lt {
			positions = append(positions, i)
		}
	}
	return positions
}
