// Copyright 2025 James Ross

// Package messenger defines the messenger driver contract: sending
// text, uploading a file, and redelivering by a cached content handle.
package messenger

import "context"

// Handle is the platform-issued pair returned on every successful upload,
// cached on the catalog item so later deliveries can skip re-uploading.
type Handle struct {
	ID       string
	UniqueID string
}

// Driver is the capability contract every messenger backend implements.
type Driver interface {
	SendText(ctx context.Context, chatID int64, text string) error
	// SendFile uploads localPath and returns the handle the platform issued.
	SendFile(ctx context.Context, chatID int64, localPath, caption string) (Handle, error)
	// SendByHandle redelivers previously uploaded content without
	// re-reading it. It may return a refreshed handle, and fails with a
	// joberr.ClassHandleInvalid error if the platform evicted the content.
	SendByHandle(ctx context.Context, chatID int64, handle Handle, caption string) (Handle, error)
}
