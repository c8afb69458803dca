package errprocess

import (
	"fmt"

	"case_chat_service/pkg/logger"
)

// Wrap log msg with the cause and return a wrapped error that keeps cause for errors.Is.
func Wrap(msg string, cause error) error {
	logger.Log.Errorf(msg, cause)
	return fmt.Errorf("%s: %w", msg, cause)
}
