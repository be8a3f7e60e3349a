package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")
	ErrTemporary    = errors.New("temporary failure")

	// ErrCorpusParse and ErrCorpusEmpty are fatal to index construction.
	ErrCorpusParse = errors.New("corpus parse error")
	ErrCorpusEmpty = errors.New("corpus has no identified elements")

	ErrIdentifierNotFound   = errors.New("part_id not found")
	ErrUnknownTool          = errors.New("unknown tool")
	ErrMalformedDirective   = errors.New("malformed tool directive")
	ErrRetrieverUnavailable = errors.New("retriever not initialized")
	ErrRunNotFound          = errors.New("run not found")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
