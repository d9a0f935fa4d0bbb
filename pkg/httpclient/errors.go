package httpclient

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Adda-Baaj/jist-harvester/internal/domain"
)

// Classify maps a transport error onto the harvester's failure taxonomy.
// Corrupt compressed bodies become domain.ErrDecodeFailure; everything else that
// prevented a response becomes domain.ErrConnectionFailure. Context errors pass through.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, domain.ErrDecodeFailure) || errors.Is(err, domain.ErrConnectionFailure) {
		return err
	}
	if IsDecodeError(err) {
		return fmt.Errorf("%w: %w", domain.ErrDecodeFailure, err)
	}
	return fmt.Errorf("%w: %w", domain.ErrConnectionFailure, err)
}

// IsDecodeError reports whether err came from decoding a compressed or truncated body.
func IsDecodeError(err error) bool {
	var corrupt flate.CorruptInputError
	return errors.Is(err, gzip.ErrHeader) ||
		errors.Is(err, gzip.ErrChecksum) ||
		errors.As(err, &corrupt) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}
