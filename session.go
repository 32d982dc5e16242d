package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// SessionState is the lifecycle state of an ExportSession.
type SessionState int

const (
	// StateUninitialized is the state of a new session.
	StateUninitialized SessionState = iota

	// StateInitialized means the run exists but no block has been fetched.
	StateInitialized

	// StatePaging means at least one block has been fetched.
	StatePaging

	// StateDone means the server reported end of run. Terminal.
	StateDone

	// StateFailed means a remote call failed or the run was cancelled. Terminal.
	StateFailed
)

// String returns the state name.
func (s SessionState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StatePaging:
		return "paging"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("SessionState(%d)", int(s))
	}
}

// SessionOptions configures a single export.
type SessionOptions struct {
	// Query selects the objects and fields to export.
	Query Query

	// BlockSize is the number of rows requested per fetch. Required, >= 1.
	BlockSize int

	// StreamWorkers bounds the number of long-text values streamed at once
	// within a block. Defaults to 1 (sequential).
	StreamWorkers int

	// TextEncoding is the encoding of streamed long-text values.
	// Defaults to EncodingUTF16LE.
	TextEncoding TextEncoding

	// Logger receives session diagnostics. Defaults to a discarding logger.
	Logger *logrus.Logger

	// Metrics, if set, receives block and streaming counters.
	Metrics *MetricsCollector
}

// Validate checks the options and fills defaults.
func (o *SessionOptions) Validate() error {
	if err := o.Query.Validate(); err != nil {
		return err
	}
	if o.BlockSize < 1 {
		return &ValidationError{Field: "BlockSize", Message: "block size must be a positive integer"}
	}
	if o.StreamWorkers < 0 {
		return &ValidationError{Field: "StreamWorkers", Message: "cannot be negative"}
	}
	if o.StreamWorkers == 0 {
		o.StreamWorkers = 1
	}
	if o.TextEncoding == "" {
		o.TextEncoding = EncodingUTF16LE
	}
	if _, err := ParseTextEncoding(string(o.TextEncoding)); err != nil {
		return &ValidationError{Field: "TextEncoding", Message: err.Error()}
	}
	if o.Logger == nil {
		o.Logger = newDiscardLogger()
	}
	return nil
}

// Emitter receives the output of an export run in order: run, then for each
// block its rows, then for each row its fields in query order.
type Emitter interface {
	RunStarted(run *ExportRun) error
	BlockStarted(number, rows int) error
	RowStarted(index int, row Row) error
	Field(name string, value any) error
	RowDone() error
	BlockDone() error
	RunDone() error
}

// ExportSession drives one export run: initialize, fetch blocks until the
// server reports end of run, and stream long-text values the server left out
// of a block. A session is single use.
type ExportSession struct {
	api         ExportAPI
	workspaceID int
	opts        SessionOptions
	log         *logrus.Entry

	mu     sync.Mutex
	state  SessionState
	run    *ExportRun
	blocks int
}

// NewExportSession creates a session that runs against api in the given workspace.
//
// Arguments:
//   - api: The remote export service.
//   - workspaceID: The workspace to export from.
//   - opts: Query and paging options.
//
// Returns:
//   - *ExportSession: A session in StateUninitialized.
//   - error: A *ValidationError if the options are invalid.
func NewExportSession(api ExportAPI, workspaceID int, opts SessionOptions) (*ExportSession, error) {
	if api == nil {
		return nil, &ValidationError{Field: "api", Message: "export api is required"}
	}
	if workspaceID <= 0 {
		return nil, &ValidationError{Field: "WorkspaceID", Message: "workspace id must be positive"}
	}
	opts.Query.Fields = append([]FieldRef(nil), opts.Query.Fields...)
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	return &ExportSession{
		api:         api,
		workspaceID: workspaceID,
		opts:        opts,
		log:         opts.Logger.WithField("workspace_id", workspaceID),
		state:       StateUninitialized,
	}, nil
}

// State returns the current session state.
func (s *ExportSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ExportRun returns the run created by Initialize, or nil before it.
func (s *ExportSession) ExportRun() *ExportRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run
}

// fail moves the session to StateFailed.
func (s *ExportSession) fail() {
	s.mu.Lock()
	s.state = StateFailed
	s.mu.Unlock()
}

// Initialize starts the export run on the server.
//
// Arguments:
//   - ctx: Context for cancellation. Checked before the remote call.
//
// Returns:
//   - *ExportRun: The run, with its long-text positions recorded.
//   - error: *InitializationError on remote failure or an unusable run
//     identifier, *StateError if the session was already initialized.
func (s *ExportSession) Initialize(ctx context.Context) (*ExportRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateUninitialized {
		return nil, &StateError{Operation: "initialize", State: s.state}
	}

	if err := ctx.Err(); err != nil {
		s.state = StateFailed
		return nil, &InitializationError{WorkspaceID: s.workspaceID, Underlying: err}
	}

	result := s.api.InitializeExport(ctx, s.workspaceID, s.opts.Query, 0)
	if result.IsError() {
		s.state = StateFailed
		return nil, &InitializationError{WorkspaceID: s.workspaceID, Underlying: result.Error}
	}

	initResults := result.Data
	runID, err := uuid.Parse(initResults.RunID)
	if err != nil || runID == uuid.Nil {
		s.state = StateFailed
		return nil, &InitializationError{
			WorkspaceID: s.workspaceID,
			Message:     fmt.Sprintf("server returned no usable run identifier %q", initResults.RunID),
		}
	}

	if len(initResults.FieldData) != len(s.opts.Query.Fields) {
		s.state = StateFailed
		return nil, &InitializationError{
			WorkspaceID: s.workspaceID,
			Message: fmt.Sprintf("server returned metadata for %d fields, query requested %d",
				len(initResults.FieldData), len(s.opts.Query.Fields)),
		}
	}

	s.run = NewExportRun(s.workspaceID, runID, initResults.RecordCount, initResults.FieldData, s.opts.Query.Fields)
	s.state = StateInitialized
	s.log = s.log.WithField("run_id", runID.String())
	s.log.WithFields(logrus.Fields{
		"record_count":        initResults.RecordCount,
		"long_text_positions": s.run.LongTextPositions(),
	}).Info("export run initialized")

	return s.run, nil
}

// NextBlock fetches up to BlockSize rows from the server-side cursor.
//
// Arguments:
//   - ctx: Context for cancellation. Checked before the remote call.
//
// Returns:
//   - ResultBlock: The next block of rows.
//   - error: ErrEndOfRun when the server returns no rows, *FetchError on
//     failure, *StateError outside the initialized and paging states.
func (s *ExportSession) NextBlock(ctx context.Context) (ResultBlock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateInitialized && s.state != StatePaging {
		return ResultBlock{}, &StateError{Operation: "next block", State: s.state}
	}

	number := s.blocks + 1
	if err := ctx.Err(); err != nil {
		s.state = StateFailed
		return ResultBlock{}, &FetchError{RunID: s.run.ID().String(), Block: number, Underlying: err}
	}

	result := s.api.RetrieveNextResultsBlockFromExport(ctx, s.workspaceID, s.run.ID(), s.opts.BlockSize)
	if result.IsError() {
		s.state = StateFailed
		return ResultBlock{}, &FetchError{RunID: s.run.ID().String(), Block: number, Underlying: result.Error}
	}

	rows := result.Data
	if len(rows) == 0 {
		s.state = StateDone
		s.log.WithField("blocks", s.blocks).Info("export run complete")
		return ResultBlock{}, ErrEndOfRun
	}

	for i, row := range rows {
		if len(row.Values) != s.run.FieldCount() {
			s.state = StateFailed
			return ResultBlock{}, &FetchError{
				RunID: s.run.ID().String(),
				Block: number,
				Underlying: fmt.Errorf("row %d (artifact %d) has %d values, run has %d fields",
					i, row.ArtifactID, len(row.Values), s.run.FieldCount()),
			}
		}
	}

	s.blocks = number
	s.state = StatePaging
	if s.opts.Metrics != nil {
		s.opts.Metrics.RecordBlock(len(rows))
	}
	s.log.WithFields(logrus.Fields{"block": number, "rows": len(rows)}).Debug("fetched block")

	return ResultBlock{Number: number, Rows: rows}, nil
}

// ResolveValue returns the materialized value of a long-text field. If the
// row's raw value is exactly LongTextSentinel, the full value is streamed
// from the server and decoded; any other value is returned unchanged.
//
// Arguments:
//   - ctx: Context for cancellation. Checked before the remote call.
//   - row: A row from the current run.
//   - fieldIndex: Position of a field flagged long-text.
//
// Returns:
//   - any: The materialized value.
//   - error: *ContractError if fieldIndex is not a long-text position,
//     *StreamingError if streaming fails, *StateError without a run.
func (s *ExportSession) ResolveValue(ctx context.Context, row Row, fieldIndex int) (any, error) {
	s.mu.Lock()
	state, run := s.state, s.run
	s.mu.Unlock()

	if state != StateInitialized && state != StatePaging {
		return nil, &StateError{Operation: "resolve value", State: state}
	}

	value, _, err := s.resolve(ctx, run, row, fieldIndex)
	return value, err
}

// resolve implements ResolveValue and reports whether a stream was read.
func (s *ExportSession) resolve(ctx context.Context, run *ExportRun, row Row, fieldIndex int) (any, bool, error) {
	if fieldIndex < 0 || fieldIndex >= run.FieldCount() {
		return nil, false, &ContractError{
			Operation: "resolve value",
			Message:   fmt.Sprintf("field index %d out of range [0,%d)", fieldIndex, run.FieldCount()),
		}
	}
	if !run.IsLongText(fieldIndex) {
		return nil, false, &ContractError{
			Operation: "resolve value",
			Message:   fmt.Sprintf("field %q is %s, not long text", run.Field(fieldIndex).Name, run.Field(fieldIndex).FieldType),
		}
	}
	if fieldIndex >= len(row.Values) {
		return nil, false, &ContractError{
			Operation: "resolve value",
			Message:   fmt.Sprintf("row for artifact %d has no value at position %d", row.ArtifactID, fieldIndex),
		}
	}

	raw := row.Values[fieldIndex]
	if text, ok := raw.(string); !ok || text != LongTextSentinel {
		return raw, false, nil
	}

	field := run.FieldRef(fieldIndex)
	if err := ctx.Err(); err != nil {
		s.fail()
		return nil, false, &StreamingError{ArtifactID: row.ArtifactID, Field: field.String(), Underlying: err}
	}

	result := s.api.StreamLongText(ctx, run.WorkspaceID(), ObjectRef{ArtifactID: row.ArtifactID}, field)
	if result.IsError() {
		s.fail()
		return nil, false, &StreamingError{ArtifactID: row.ArtifactID, Field: field.String(), Underlying: result.Error}
	}

	stream := result.Data
	defer stream.Close()

	text, err := decodeLongText(stream, s.opts.TextEncoding)
	if err != nil {
		s.fail()
		return nil, false, &StreamingError{ArtifactID: row.ArtifactID, Field: field.String(), Underlying: err}
	}

	if s.opts.Metrics != nil {
		s.opts.Metrics.RecordStreamedValue(utf8.RuneCountInString(text))
	}
	s.log.WithFields(logrus.Fields{
		"artifact_id": row.ArtifactID,
		"field":       field.String(),
		"bytes":       len(text),
	}).Debug("streamed long text value")

	return text, true, nil
}

// longTextCell addresses one long-text value within a block.
type longTextCell struct {
	row   int
	field int
}

// resolveBlock materializes every long-text value in the block. Rows and
// fields keep their positions whatever order the streams complete in.
func (s *ExportSession) resolveBlock(ctx context.Context, run *ExportRun, block ResultBlock, summary *ExportSummary) ([][]any, error) {
	values := make([][]any, len(block.Rows))
	var cells []longTextCell
	positions := run.LongTextPositions()
	for r, row := range block.Rows {
		values[r] = append([]any(nil), row.Values...)
		for _, p := range positions {
			cells = append(cells, longTextCell{row: r, field: p})
		}
	}

	resolved, err := ProcessConcurrently(ctx, cells, func(ctx context.Context, _ int, cell longTextCell) (any, error) {
		value, streamed, err := s.resolve(ctx, run, block.Rows[cell.row], cell.field)
		if err != nil {
			return nil, err
		}
		if streamed {
			summary.valueStreamed()
		}
		return value, nil
	}, WorkerPoolConfig{NumWorkers: s.opts.StreamWorkers}, nil)
	if err != nil {
		var streamErr *StreamingError
		if !errors.As(err, &streamErr) {
			s.fail()
			err = &StreamingError{Field: "block", Underlying: err}
		}
		return nil, err
	}

	for i, cell := range cells {
		values[cell.row][cell.field] = resolved[i]
	}
	return values, nil
}

// Run drives the whole export: initialize, then fetch, resolve and emit
// blocks until the server reports end of run. The first error stops the
// run; nothing further is emitted after it. The error is returned, not
// logged above debug level, so the caller reports it once.
//
// Arguments:
//   - ctx: Context for cancellation, checked before every remote call.
//   - emitter: Receives the run's output in order.
//
// Returns:
//   - *ExportSummary: Counters and timing, also on failure.
//   - error: The error that stopped the run, nil on success.
//
// Example:
//
//	summary, err := session.Run(ctx, transcript.NewTextWriter(os.Stdout))
//	if err != nil {
//	    log.Fatalf("export failed after %d rows: %v", summary.Rows, err)
//	}
func (s *ExportSession) Run(ctx context.Context, emitter Emitter) (*ExportSummary, error) {
	summary := newExportSummary()

	finish := func(err error) (*ExportSummary, error) {
		summary.finish(err)
		if err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{
				"blocks": summary.Blocks,
				"rows":   summary.Rows,
			}).Debug("export run failed")
		}
		return summary, err
	}

	run, err := s.Initialize(ctx)
	if err != nil {
		return finish(err)
	}
	summary.started(run)

	if err := emitter.RunStarted(run); err != nil {
		s.fail()
		return finish(fmt.Errorf("emit run header: %w", err))
	}

	for {
		block, err := s.NextBlock(ctx)
		if errors.Is(err, ErrEndOfRun) {
			break
		}
		if err != nil {
			return finish(err)
		}
		summary.blockFetched(block.Len())

		values, err := s.resolveBlock(ctx, run, block, summary)
		if err != nil {
			return finish(err)
		}

		if err := s.emitBlock(emitter, run, block, values); err != nil {
			s.fail()
			return finish(fmt.Errorf("emit block %d: %w", block.Number, err))
		}
	}

	if err := emitter.RunDone(); err != nil {
		return finish(fmt.Errorf("emit run end: %w", err))
	}

	return finish(nil)
}

// emitBlock writes one resolved block in row and field order.
func (s *ExportSession) emitBlock(emitter Emitter, run *ExportRun, block ResultBlock, values [][]any) error {
	if err := emitter.BlockStarted(block.Number, block.Len()); err != nil {
		return err
	}
	for r, row := range block.Rows {
		if err := emitter.RowStarted(r, row); err != nil {
			return err
		}
		for i, value := range values[r] {
			if err := emitter.Field(run.Field(i).Name, value); err != nil {
				return err
			}
		}
		if err := emitter.RowDone(); err != nil {
			return err
		}
	}
	return emitter.BlockDone()
}
