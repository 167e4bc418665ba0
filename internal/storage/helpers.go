package storage

import (
	"errors"

	"github.com/covault/covault/internal/common"
)

// IsNotFound reports whether err is the repository not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, common.ErrNotFound)
}

// DocumentID extracts the primary key of a stored document.
func DocumentID(doc map[string]any) (string, bool) {
	id, ok := doc[IDField].(string)
	return id, ok
}
