package repository

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/nsvirk/tickcollector/internal/errs"
	"github.com/stretchr/testify/assert"
)

func TestClassifyWriteErrorNilIsNil(t *testing.T) {
	assert.NoError(t, classifyWriteError("op", nil))
}

func TestClassifyWriteErrorConstraintViolationIsPermanent(t *testing.T) {
	err := classifyWriteError("op", &pgconn.PgError{Code: "23505", Message: "duplicate key"})
	assert.True(t, errs.IsPermanent(err))
	assert.False(t, errs.IsTransient(err))
}

func TestClassifyWriteErrorDataExceptionIsPermanent(t *testing.T) {
	err := classifyWriteError("op", &pgconn.PgError{Code: "22003", Message: "numeric value out of range"})
	assert.True(t, errs.IsPermanent(err))
}

func TestClassifyWriteErrorSerializationFailureIsTransient(t *testing.T) {
	err := classifyWriteError("op", &pgconn.PgError{Code: "40001", Message: "could not serialize access"})
	assert.True(t, errs.IsTransient(err))
	assert.False(t, errs.IsPermanent(err))
}

func TestClassifyWriteErrorNetworkFailureIsTransient(t *testing.T) {
	err := classifyWriteError("op", errors.New("connection reset by peer"))
	assert.True(t, errs.IsTransient(err))
}
