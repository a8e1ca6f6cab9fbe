package domain

import "errors"

var (
	// ErrCollectionNotFound signals a missing collection.
	ErrCollectionNotFound = errors.New("collection not found")
	// ErrCollectionExists signals a duplicate collection name.
	ErrCollectionExists = errors.New("collection already exists")
	// ErrPointNotFound signals a missing point.
	ErrPointNotFound = errors.New("point not found")
	// ErrInvalidDistance signals an unknown distance metric name.
	ErrInvalidDistance = errors.New("invalid distance metric")

	// ErrDimension signals an invalid vector length.
	ErrDimension = errors.New("invalid vector dimension")
	// ErrDimensionMismatch signals disagreeing vector dimensions within one request.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrFilterParse signals a malformed filter expression.
	ErrFilterParse = errors.New("filter parse error")
	// ErrUnsupportedStrategy signals an unknown recommendation strategy name.
	ErrUnsupportedStrategy = errors.New("unsupported recommendation strategy")

	// ErrSessionNotFound signals a missing scroll session.
	ErrSessionNotFound = errors.New("scroll session not found")
	// ErrSessionExpired signals an expired scroll session.
	ErrSessionExpired = errors.New("scroll session expired")
	// ErrSessionBusy signals a concurrent continuation on the same session.
	ErrSessionBusy = errors.New("scroll session busy")

	// ErrCancelled marks batch slots whose sub-operation never started
	// because the batch deadline elapsed first.
	ErrCancelled = errors.New("cancelled")
)
