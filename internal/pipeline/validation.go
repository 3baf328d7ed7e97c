package pipeline

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrInvalidInput marks failures caused by the uploaded file or form values.
var ErrInvalidInput = errors.New("invalid input")

// InputError carries a message meant for the uploader.
type InputError struct {
	Detail string
	Err    error
}

func (e *InputError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Detail, e.Err)
	}
	return e.Detail
}

func (e *InputError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrInvalidInput) true.
func (e *InputError) Is(target error) bool { return target == ErrInvalidInput }

func invalid(detail string) error {
	return &InputError{Detail: detail}
}

// ValidateFilename requires a spreadsheet extension, compared case-insensitively.
func ValidateFilename(filename string) error {
	if strings.TrimSpace(filename) == "" {
		return invalid("No filename provided")
	}
	ext := strings.ToLower(filepath.Ext(filename))
	for _, allowed := range AllowedExtensions {
		if ext == allowed {
			return nil
		}
	}
	return invalid(fmt.Sprintf("Invalid file type. Allowed types: %s", strings.Join(AllowedExtensions, ", ")))
}

// ValidateYear requires exactly four ASCII digits.
func ValidateYear(year string) error {
	if len(year) != 4 {
		return invalid("Year must be a 4-digit number")
	}
	for i := 0; i < len(year); i++ {
		if year[i] < '0' || year[i] > '9' {
			return invalid("Year must be a 4-digit number")
		}
	}
	return nil
}

// ValidateSize rejects uploads larger than max bytes. max <= 0 uses
// DefaultMaxUploadBytes.
func ValidateSize(size, max int64) error {
	if max <= 0 {
		max = DefaultMaxUploadBytes
	}
	if size > max {
		return invalid(fmt.Sprintf("File too large. Maximum size is %d bytes", max))
	}
	return nil
}

// ValidateUpload runs every upload check in order.
func ValidateUpload(u Upload, maxBytes int64) error {
	if err := ValidateFilename(u.Filename); err != nil {
		return err
	}
	if err := ValidateYear(u.Year); err != nil {
		return err
	}
	return ValidateSize(int64(len(u.Data)), maxBytes)
}
