package workflow

import (
	"context"
	"errors"

	"github.com/liliang-cn/leadgen/internal/backend"
	"github.com/liliang-cn/leadgen/internal/domain"
)

// Normalize maps any failure to a single user-facing ErrorInfo.
// A message written by the backend always wins over fallback; every other
// failure gets fallback, so the message is never empty.
func Normalize(err error, fallback string) domain.ErrorInfo {
	var errInfo *domain.ErrorInfo
	if errors.As(err, &errInfo) {
		out := *errInfo
		if out.Message == "" {
			out.Message = fallback
		}
		return out
	}

	var respErr *backend.ResponseError
	if errors.As(err, &respErr) {
		switch {
		case respErr.Message != "":
			return domain.ErrorInfo{Kind: domain.ErrorKindBackend, Message: respErr.Message}
		case respErr.Logical:
			return domain.ErrorInfo{Kind: domain.ErrorKindBackend, Message: fallback}
		default:
			return domain.ErrorInfo{Kind: domain.ErrorKindUnknown, Message: fallback}
		}
	}

	var transportErr *backend.TransportError
	if errors.As(err, &transportErr) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		return domain.ErrorInfo{Kind: domain.ErrorKindNetwork, Message: fallback}
	}

	return domain.ErrorInfo{Kind: domain.ErrorKindUnknown, Message: fallback}
}
