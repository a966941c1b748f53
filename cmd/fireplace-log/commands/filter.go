package commands

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/armish/fireplace/pkg/log"
)

// ErrSameFile is returned when the filter output would overwrite its input.
var ErrSameFile = errors.New("output file must differ from input file")

// RunFilter copies the events in path matching filter to output and returns
// how many were written. Events are appended when output already exists.
func RunFilter(path, output string, filter log.Filter) (int, error) {
	if same, err := samePath(path, output); err != nil {
		return 0, err
	} else if same {
		return 0, ErrSameFile
	}

	logger, err := log.NewFileLogger(output)
	if err != nil {
		return 0, fmt.Errorf("failed to create output logger: %w", err)
	}

	err = eachEvent(path, filter, func(event log.Event) error {
		logger.Log(event)
		return nil
	})
	if closeErr := logger.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("failed to close output: %w", closeErr)
	}
	return logger.Written(), err
}

func samePath(a, b string) (bool, error) {
	absA, err := filepath.Abs(a)
	if err != nil {
		return false, err
	}
	absB, err := filepath.Abs(b)
	if err != nil {
		return false, err
	}
	return absA == absB, nil
}
