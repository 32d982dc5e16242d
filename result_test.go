package client

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResult_IsSuccess(t *testing.T) {
	result := Success([]Row{{ArtifactID: 1}})

	assert.True(t, result.IsSuccess())
	assert.False(t, result.IsError())
	assert.Len(t, result.Data, 1)
	assert.Nil(t, result.Error)
}

func TestResult_IsError(t *testing.T) {
	testErr := errors.New("block not available")
	result := Error[[]Row](testErr)

	assert.False(t, result.IsSuccess())
	assert.True(t, result.IsError())
	assert.Nil(t, result.Data)
	assert.Equal(t, testErr, result.Error)
}

func TestResult_WithMetadata(t *testing.T) {
	meta := &ResultMetadata{Operation: OpRetrieveNextBlock, Attempt: 2, Duration: time.Second}

	ok := SuccessWithMetadata("data", meta)
	assert.True(t, ok.IsSuccess())
	assert.Same(t, meta, ok.Metadata)

	failed := ErrorWithMetadata[string](errors.New("boom"), meta)
	assert.True(t, failed.IsError())
	assert.Empty(t, failed.Data)
	assert.Equal(t, 2, failed.Metadata.Attempt)
}

func TestResult_GoConversion(t *testing.T) {
	data, err := ToGoResult(Success(42))
	assert.NoError(t, err)
	assert.Equal(t, 42, data)

	_, err = ToGoResult(Error[int](errors.New("nope")))
	assert.EqualError(t, err, "nope")

	result := FromGoResult("x", nil)
	assert.True(t, result.IsSuccess())

	result = FromGoResult("x", errors.New("bad"))
	assert.True(t, result.IsError())
	assert.Empty(t, result.Data)
}
