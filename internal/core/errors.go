package core

import "errors"

var (
	ErrPostNotFound    = errors.New("post not found")
	ErrCommentNotFound = errors.New("comment not found")
	ErrUnknownParent   = errors.New("parent comment not present")
	ErrWriteRejected   = errors.New("write rejected")
	ErrQueueFull       = errors.New("deferred insert queue full")
)
