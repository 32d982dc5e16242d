package client

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
)

// Remote operation names, used in request paths, logs and metrics.
const (
	OpInitializeExport   = "initializeexport"
	OpRetrieveNextBlock  = "retrievenextresultsblockfromexport"
	OpStreamLongText     = "streamlongtext"
	objectManagerBaseURL = "/Relativity.REST/api/Relativity.Objects/workspace/%d/object/%s"
)

// ExportAPI is the remote export service an ExportSession drives.
// Every call returns a tagged Result rather than panicking or logging.
type ExportAPI interface {
	// InitializeExport starts a run for query, beginning at record start.
	InitializeExport(ctx context.Context, workspaceID int, query Query, start int) Result[ExportInitializationResults]

	// RetrieveNextResultsBlockFromExport returns up to blockSize rows from
	// the run's server-side cursor. An empty or nil slice ends the run.
	RetrieveNextResultsBlockFromExport(ctx context.Context, workspaceID int, runID uuid.UUID, blockSize int) Result[[]Row]

	// StreamLongText opens the full value of one long-text field of one
	// object. The caller must close the returned stream.
	StreamLongText(ctx context.Context, workspaceID int, object ObjectRef, field FieldRef) Result[io.ReadCloser]
}

// ObjectManager implements ExportAPI over the platform's REST object manager.
type ObjectManager struct {
	httpClient *HTTPClient
}

// NewObjectManager creates an ObjectManager that sends requests through httpClient.
func NewObjectManager(httpClient *HTTPClient) *ObjectManager {
	return &ObjectManager{httpClient: httpClient}
}

var _ ExportAPI = (*ObjectManager)(nil)

type initializeExportRequest struct {
	QueryRequest Query `json:"queryRequest"`
	Start        int   `json:"start"`
}

type retrieveNextBlockRequest struct {
	RunID            string `json:"runID"`
	ResultsBlockSize int    `json:"resultsBlockSize"`
}

type streamLongTextRequest struct {
	ExportObject  ObjectRef `json:"exportObject"`
	LongTextField FieldRef  `json:"longTextField"`
}

func objectPath(workspaceID int, operation string) string {
	return fmt.Sprintf(objectManagerBaseURL, workspaceID, operation)
}

// InitializeExport starts an export run.
//
// Arguments:
//   - ctx: Context for cancellation and timeouts.
//   - workspaceID: The workspace to export from.
//   - query: The fields and object type to export.
//   - start: Index of the first record to return.
//
// Returns:
//   - Result[ExportInitializationResults]: The run ID, record count and field metadata.
func (om *ObjectManager) InitializeExport(ctx context.Context, workspaceID int, query Query, start int) Result[ExportInitializationResults] {
	var out ExportInitializationResults
	meta, err := om.httpClient.PostJSON(ctx, &Request{
		Operation: OpInitializeExport,
		Method:    http.MethodPost,
		Path:      objectPath(workspaceID, OpInitializeExport),
		Body:      initializeExportRequest{QueryRequest: query, Start: start},
	}, &out)
	if err != nil {
		return ErrorWithMetadata[ExportInitializationResults](err, meta)
	}
	return SuccessWithMetadata(out, meta)
}

// RetrieveNextResultsBlockFromExport fetches the next block of a run.
// The call is never retried: the server cursor advances on every request.
//
// Arguments:
//   - ctx: Context for cancellation and timeouts.
//   - workspaceID: The workspace the run belongs to.
//   - runID: The run identifier returned by InitializeExport.
//   - blockSize: The maximum number of rows to return.
//
// Returns:
//   - Result[[]Row]: The rows, or an empty slice at end of run.
func (om *ObjectManager) RetrieveNextResultsBlockFromExport(ctx context.Context, workspaceID int, runID uuid.UUID, blockSize int) Result[[]Row] {
	var rows []Row
	meta, err := om.httpClient.PostJSON(ctx, &Request{
		Operation: OpRetrieveNextBlock,
		Method:    http.MethodPost,
		Path:      objectPath(workspaceID, OpRetrieveNextBlock),
		Body:      retrieveNextBlockRequest{RunID: runID.String(), ResultsBlockSize: blockSize},
	}, &rows)
	if err != nil {
		return ErrorWithMetadata[[]Row](err, meta)
	}
	return SuccessWithMetadata(rows, meta)
}

// StreamLongText opens the full text of a single field. Reading the same
// value twice is harmless, so transient failures are retried.
//
// Arguments:
//   - ctx: Context for cancellation and timeouts.
//   - workspaceID: The workspace the object lives in.
//   - object: The object (row) holding the value.
//   - field: The long-text field to stream.
//
// Returns:
//   - Result[io.ReadCloser]: The raw encoded text. The caller must close it.
func (om *ObjectManager) StreamLongText(ctx context.Context, workspaceID int, object ObjectRef, field FieldRef) Result[io.ReadCloser] {
	body, meta, err := om.httpClient.PostStream(ctx, &Request{
		Operation:  OpStreamLongText,
		Method:     http.MethodPost,
		Path:       objectPath(workspaceID, OpStreamLongText),
		Body:       streamLongTextRequest{ExportObject: object, LongTextField: field},
		Headers:    map[string]string{"Accept": "application/octet-stream"},
		Idempotent: true,
	})
	if err != nil {
		return ErrorWithMetadata[io.ReadCloser](err, meta)
	}
	return SuccessWithMetadata(body, meta)
}
