package entity

import "fmt"

// FetchErrorKind classifies a feed fetch failure for the error governor.
// It replaces exception-type dispatch with a closed set of outcomes.
type FetchErrorKind string

const (
	KindNotFound     FetchErrorKind = "not_found"
	KindForbidden    FetchErrorKind = "forbidden"
	KindHTTPError    FetchErrorKind = "http_error"
	KindTimeout      FetchErrorKind = "timeout"
	KindNetworkError FetchErrorKind = "network_error"
	KindParsingError FetchErrorKind = "parsing_error"
	KindException    FetchErrorKind = "exception"
)

// NotFoundError maps a 404 response. It is never retried.
type NotFoundError struct{ URL string }

func (e *NotFoundError) Error() string { return fmt.Sprintf("feed not found: %s", e.URL) }

// ForbiddenError maps a 403 response.
type ForbiddenError struct{ URL string }

func (e *ForbiddenError) Error() string { return fmt.Sprintf("feed forbidden: %s", e.URL) }

// HTTPStatusError maps any other non-2xx response, status preserved.
type HTTPStatusError struct {
	URL    string
	Status int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("feed http error %d: %s", e.Status, e.URL)
}

// TimeoutError maps a request exceeding its bounded deadline.
type TimeoutError struct{ URL string }

func (e *TimeoutError) Error() string { return fmt.Sprintf("feed fetch timed out: %s", e.URL) }

// NetworkError maps a transport-layer failure (DNS, connection refused, TLS, ...).
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("feed network error: %s: %v", e.URL, e.Err) }
func (e *NetworkError) Unwrap() error { return e.Err }

// ParsingError maps a response that could not be parsed as a feed, or an
// empty/too-short 2xx body.
type ParsingError struct {
	URL string
	Err error
}

func (e *ParsingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("feed parsing error: %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("feed parsing error: %s", e.URL)
}
func (e *ParsingError) Unwrap() error { return e.Err }

// StorageBusyError maps a transient "database busy" condition from the
// article store. Callers retry with brief backoff up to a small cap.
type StorageBusyError struct{ Op string }

func (e *StorageBusyError) Error() string { return fmt.Sprintf("storage busy: %s", e.Op) }

// FilterConfigError maps an invalid FilterSpec found during registry load.
type FilterConfigError struct {
	Channel string
	Reason  string
}

func (e *FilterConfigError) Error() string {
	return fmt.Sprintf("invalid filter config for %s: %s", e.Channel, e.Reason)
}

// ConfigInvalidError maps a malformed or unreadable on-disk config file.
type ConfigInvalidError struct {
	File   string
	Reason string
}

func (e *ConfigInvalidError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.File, e.Reason)
}

// ClassifyKind maps a classified fetch error to its FetchErrorKind, for
// the error governor's per-kind bookkeeping.
func ClassifyKind(err error) FetchErrorKind {
	switch err.(type) {
	case *NotFoundError:
		return KindNotFound
	case *ForbiddenError:
		return KindForbidden
	case *HTTPStatusError:
		return KindHTTPError
	case *TimeoutError:
		return KindTimeout
	case *NetworkError:
		return KindNetworkError
	case *ParsingError:
		return KindParsingError
	default:
		return KindException
	}
}
