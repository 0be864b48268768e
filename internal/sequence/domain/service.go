package domain

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

type Service interface {
	// Next reserves the next number for kind at site, dated at. The reservation commits
	// on its own; a number whose insert later fails is simply skipped.
	Next(ctx context.Context, kind Kind, siteCode string, at time.Time) (DocumentNumber, error)
	// Peek returns the last reserved sequence for the month of at, 0 when none.
	Peek(ctx context.Context, kind Kind, siteCode string, at time.Time) (int, error)
}

type Repository interface {
	Increment(ctx context.Context, db *gorm.DB, kind Kind, siteCode, period string, now time.Time) (bool, error)
	Get(ctx context.Context, db *gorm.DB, kind Kind, siteCode, period string) (*Counter, error)
	Insert(ctx context.Context, db *gorm.DB, counter *Counter) error
	LegacyNumbers(ctx context.Context, db *gorm.DB, kind Kind, siteCode, periodPrefix string, from, to time.Time) ([]string, error)
}

var (
	ErrInvalidKind       = errors.New("invalid_kind")
	ErrInvalidSiteCode   = errors.New("invalid_site_code")
	ErrMalformedNumber   = errors.New("malformed_document_number")
	ErrSequenceExhausted = errors.New("sequence_exhausted")
	ErrSequenceContended = errors.New("sequence_contended")
)
