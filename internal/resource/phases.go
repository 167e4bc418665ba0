package resource

import (
	"context"

	"github.com/covault/covault/internal/common"
	"github.com/covault/covault/internal/query"
	"github.com/covault/covault/internal/storage"
	"github.com/covault/covault/internal/upload"
)

// validateProps type-checks submitted values against the declared schema.
// A bigbuffer is still a numeric staged-file index at this point; refs must
// name an existing resource of the target type.
func (s *Service) validateProps(ctx context.Context, contextID string,
	props map[string]PropDescription, values map[string]any) error {

	_, err := walkProps("", props, values, true, func(path string, desc PropDescription, value any) (any, error) {
		switch desc.Kind {
		case PropString:
			if _, ok := value.(string); !ok {
				return nil, common.NewError(common.CodeInvalidParams, "prop %q is not a string", path)
			}
		case PropBoolean:
			if _, ok := value.(bool); !ok {
				return nil, common.NewError(common.CodeInvalidParams, "prop %q is not a boolean", path)
			}
		case PropNumber:
			if !isNumber(value) {
				return nil, common.NewError(common.CodeInvalidParams, "prop %q is not a number", path)
			}
		case PropBigBuffer:
			if !isNumber(value) {
				return nil, common.NewError(common.CodeInvalidParams,
					"prop %q is not a staged-file index", path)
			}
		case PropRef:
			id, ok := value.(string)
			if !ok {
				return nil, common.NewError(common.CodeInvalidParams, "prop %q is not a resource id", path)
			}
			if _, err := s.registry.Get(desc.RefType); err != nil {
				return nil, err
			}
			exists, err := s.repo(contextID, desc.RefType).Exists(ctx, query.Eq(storage.IDField, id))
			if err != nil {
				return nil, err
			}
			if !exists {
				return nil, common.NewError(common.CodeResourceDoesNotExist,
					"prop %q references missing resource %q", path, id)
			}
		}
		return value, nil
	})
	return err
}

// checkBigBuffers requires every bigbuffer leaf to name an existing file of
// the staging session. It runs before any write is issued.
func (s *Service) checkBigBuffers(props map[string]PropDescription, values map[string]any,
	staged *upload.Staged) error {

	_, err := walkProps("", props, values, true, func(path string, desc PropDescription, value any) (any, error) {
		if desc.Kind != PropBigBuffer {
			return value, nil
		}
		idx, ok := toInt(value)
		if !ok {
			return nil, common.NewError(common.CodeInvalidParams,
				"prop %q is not a staged-file index", path)
		}
		if staged == nil {
			return nil, common.NewError(common.CodeFileDoesNotExist,
				"prop %q requires an active upload session", path)
		}
		if staged.File(idx) == nil {
			return nil, common.NewError(common.CodeFileDoesNotExist,
				"prop %q: no staged file with index %d", path, idx)
		}
		return value, nil
	})
	return err
}

// commitBigBuffers produces the props to persist: each bigbuffer index is
// committed and replaced by a durable {fileId, size} reference, ref values
// resolve to null since the relationship lives in sibling fields, and
// everything else passes through unchanged.
func (s *Service) commitBigBuffers(ctx context.Context, props map[string]PropDescription,
	values map[string]any, staged *upload.Staged) (map[string]any, error) {

	return walkProps("", props, values, true, func(path string, desc PropDescription, value any) (any, error) {
		switch desc.Kind {
		case PropBigBuffer:
			idx, _ := toInt(value)
			f := staged.File(idx)
			if f == nil {
				return nil, common.NewError(common.CodeFileDoesNotExist,
					"prop %q: no staged file with index %d", path, idx)
			}
			if err := s.staging.CommitStagedFile(ctx, f.FileID); err != nil {
				return nil, err
			}
			return map[string]any{"fileId": f.FileID, "size": f.Size}, nil
		case PropRef:
			return nil, nil
		default:
			return value, nil
		}
	})
}

// releaseBigBuffers walks stored props and frees the storage behind every
// committed bigbuffer. The walk is lenient: stored props already passed
// strict validation when written.
func (s *Service) releaseBigBuffers(ctx context.Context, props map[string]PropDescription,
	stored map[string]any) error {

	_, err := walkProps("", props, stored, false, func(path string, desc PropDescription, value any) (any, error) {
		if desc.Kind != PropBigBuffer {
			return value, nil
		}
		m, ok := value.(map[string]any)
		if !ok {
			return value, nil
		}
		fileID, ok := m["fileId"].(string)
		if !ok {
			return value, nil
		}
		if err := s.blobs.Delete(ctx, fileID); err != nil {
			return nil, err
		}
		return value, nil
	})
	return err
}
