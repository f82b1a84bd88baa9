package service

import "errors"

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrNotFound         = errors.New("not found")
	ErrArchiveCorrupted = errors.New("archive corrupted")
	ErrLegacyArchive    = errors.New("legacy pickle archive")
	ErrBlobNotFound     = errors.New("blob not found")
	ErrLockTimeout      = errors.New("timed out waiting for image lock")
	ErrQueueFull        = errors.New("render queue full")
	ErrStaleDraft       = errors.New("draft no longer matches the stored archive")
)
