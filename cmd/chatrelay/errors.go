package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"

	"github.com/elee1766/chatrelay/src/config"
	"github.com/elee1766/chatrelay/src/groqclient"
)

// Exit codes following standard conventions
const (
	ExitSuccess     = 0 // Success
	ExitError       = 1 // General error
	ExitUsage       = 2 // Usage error
	ExitConfig      = 3 // Configuration error
	ExitAuth        = 4 // Authentication error
	ExitNetwork     = 6 // Network error
	ExitTimeout     = 7 // Timeout error
	ExitInterrupted = 8 // Interrupted by user
)

// ErrorHandler handles different types of errors and exits with appropriate codes
type ErrorHandler struct {
	logger *slog.Logger
	exit   func(int)
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(logger *slog.Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger, exit: os.Exit}
}

// HandleError handles an error and exits with the appropriate code
func (h *ErrorHandler) HandleError(err error) {
	if err == nil {
		return
	}

	h.logger.Debug("command failed", "error", err)

	exitCode := getExitCode(err)
	fmt.Fprintf(os.Stderr, "Error: %s\n", err.Error())

	h.exit(exitCode)
}

// getExitCode determines the appropriate exit code for an error
func getExitCode(err error) int {
	var (
		validationErr config.ValidationError
		apiErr        *groqclient.APIError
		netErr        net.Error
	)

	switch {
	case errors.Is(err, context.Canceled):
		return ExitInterrupted
	case errors.Is(err, groqclient.ErrNoAPIKey):
		return ExitAuth
	case errors.As(err, &apiErr) && apiErr.IsAuthError():
		return ExitAuth
	case errors.Is(err, groqclient.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return ExitTimeout
	case errors.As(err, &validationErr), errors.Is(err, errConfig):
		return ExitConfig
	case errors.As(err, &netErr):
		return ExitNetwork
	case errors.Is(err, errUsage):
		return ExitUsage
	default:
		return ExitError
	}
}

var (
	errConfig = errors.New("configuration error")
	errUsage  = errors.New("usage error")
)
