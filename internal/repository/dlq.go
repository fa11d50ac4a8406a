package repository

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DeadLettersTableName is the table the Batch Writer drops permanently
// failed rows into, per the retry/DLQ policy.
var DeadLettersTableName = "ingestion_dead_letters"

// DeadLetter records one row the writer gave up on: a PermanentError, or a
// batch that exhausted its transient retries. A batch that exhausts its
// retries is always dead-lettered; it is never returned to the buffer.
type DeadLetter struct {
	ID      uint32         `gorm:"primaryKey"`
	Instant time.Time      `gorm:"index"`
	Kind    string         `json:"kind"`
	Reason  string         `json:"reason"`
	Row     datatypes.JSON `gorm:"type:jsonb" json:"row"`
}

// TableName specifies the table name for DeadLetter.
func (DeadLetter) TableName() string {
	return DeadLettersTableName
}

// DeadLetterRepository persists permanently-failed rows for later
// inspection; it never retries them itself.
type DeadLetterRepository struct {
	DB *gorm.DB
}

// NewDeadLetterRepository creates a new DeadLetterRepository.
func NewDeadLetterRepository(db *gorm.DB) *DeadLetterRepository {
	return &DeadLetterRepository{DB: db}
}

// Append records one dead-lettered row.
func (r *DeadLetterRepository) Append(kind, reason string, row []byte) error {
	return r.DB.Create(&DeadLetter{
		Instant: time.Now(),
		Kind:    kind,
		Reason:  reason,
		Row:     datatypes.JSON(row),
	}).Error
}
