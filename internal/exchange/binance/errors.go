package binance

import (
	"errors"
	"strings"

	"futures-console/internal/core"
)

const (
	apiCodeInvalidSymbol     = -1121
	apiCodeNewOrderRejected  = -2010
	apiCodeCancelRejected    = -2011
	apiCodeOrderNotFound     = -2013
	apiCodeMarginInsufficent = -2019
	apiCodeNotionalTooSmall  = -4164
)

var apiErrorMessageKinds = map[string]error{
	"margin is insufficient.":                 core.ErrInsufficientMargin,
	"duplicate order sent.":                   core.ErrDuplicateOrder,
	"unknown order sent.":                     core.ErrOrderNotFound,
	"order does not exist.":                   core.ErrOrderNotFound,
	"order would immediately match and take.": core.ErrOrderRejected,
}

func wrapAPIError(code int, msg string) error {
	return classifyAPIError(APIError{Code: code, Msg: msg})
}

// classifyAPIError joins the raw APIError with the core error kinds it maps to,
// so callers can test with errors.Is while keeping the exchange code and message.
func classifyAPIError(apiErr APIError) error {
	kinds := classifyAPIErrorKinds(apiErr)
	if len(kinds) == 0 {
		return apiErr
	}
	chain := make([]error, 0, 1+len(kinds))
	chain = append(chain, apiErr)
	chain = append(chain, kinds...)
	return errors.Join(chain...)
}

func classifyAPIErrorKinds(apiErr APIError) []error {
	kinds := make([]error, 0, 2)
	normalizedMsg := strings.ToLower(strings.TrimSpace(apiErr.Msg))

	switch apiErr.Code {
	case apiCodeInvalidSymbol:
		kinds = appendErrorKind(kinds, core.ErrInvalidSymbol)
	case apiCodeOrderNotFound, apiCodeCancelRejected:
		kinds = appendErrorKind(kinds, core.ErrOrderNotFound)
	case apiCodeMarginInsufficent:
		kinds = appendErrorKind(kinds, core.ErrInsufficientMargin)
	case apiCodeNotionalTooSmall:
		kinds = appendErrorKind(kinds, core.ErrOrderRejected)
	case apiCodeNewOrderRejected:
		if kind, ok := apiErrorMessageKinds[normalizedMsg]; ok {
			kinds = appendErrorKind(kinds, kind)
		} else {
			kinds = appendErrorKind(kinds, core.ErrOrderRejected)
		}
	}

	if kind, ok := apiErrorMessageKinds[normalizedMsg]; ok {
		kinds = appendErrorKind(kinds, kind)
	}

	return kinds
}

func appendErrorKind(kinds []error, kind error) []error {
	if kind == nil {
		return kinds
	}
	for _, existing := range kinds {
		if existing == kind {
			return kinds
		}
	}
	return append(kinds, kind)
}

func AsAPIError(err error) (APIError, bool) {
	if err == nil {
		return APIError{}, false
	}
	var apiErr APIError
	if !errors.As(err, &apiErr) {
		return APIError{}, false
	}
	return apiErr, true
}
