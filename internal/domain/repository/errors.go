package repository

import "errors"

var (
	ErrStorageUnavailable = errors.New("feed storage unavailable")
	ErrCommitFailure      = errors.New("feed cache commit failed")
	ErrReadFailure        = errors.New("feed cache read failed")
	ErrInvalidFeedImage   = errors.New("invalid feed image")
	ErrStoreClosed        = errors.New("feed store closed")
)
