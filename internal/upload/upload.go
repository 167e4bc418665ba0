// Package upload exposes the staged-upload collaborator: files arrive
// through an out-of-band transport, are parked in a staging area under a
// request id, and are committed to permanent storage when the resource that
// references them is written.
package upload

import (
	"context"

	"github.com/covault/covault/internal/common"
)

// StagedFile is one file parked in a staging session.
type StagedFile struct {
	Index  int    `json:"index"`
	FileID string `json:"fileId"`
	Size   int64  `json:"size"`
	Sent   int64  `json:"sent"`
}

// Complete reports whether every byte of the file has arrived.
func (f StagedFile) Complete() bool {
	return f.Sent >= f.Size
}

// Staged is a staging session: the files uploaded under one request id.
type Staged struct {
	RequestID string       `json:"requestId"`
	Files     []StagedFile `json:"files"`
}

// File returns the staged file with the given index, or nil.
func (s *Staged) File(index int) *StagedFile {
	if s == nil {
		return nil
	}
	for i := range s.Files {
		if s.Files[i].Index == index {
			return &s.Files[i]
		}
	}
	return nil
}

// Staging is the collaborator interface consumed by the binary-payload
// commit phase.
type Staging interface {
	// GetStagedUpload returns the session for the request id, failing with
	// FILE_DOES_NOT_EXIST when no such session is active.
	GetStagedUpload(ctx context.Context, requestID string) (*Staged, error)

	// CommitStagedFile moves a staged file to permanent storage.
	CommitStagedFile(ctx context.Context, fileID string) error
}

// ErrNoSession is returned when a request id names no active session.
func ErrNoSession(requestID string) error {
	return common.NewError(common.CodeFileDoesNotExist, "no staged upload for request %q", requestID)
}
