// Package status models an HTTP response status line.
package status

import (
	"fmt"
	"net/http"
	"strconv"
)

// Synthetic codes for responses that never came off the wire.
const (
	Unknown = 0
	Invalid = 0
)

// Unofficial codes seen in the wild that net/http has no text for.
var extraReasons = map[int]string{
	440: "Login Time-out",
	444: "No Response",
	449: "Retry With",
	499: "Client Closed Request",
	509: "Bandwidth Limit Exceeded",
	520: "Unknown Error",
	521: "Web Server Is Down",
	522: "Connection Timed Out",
	523: "Origin Is Unreachable",
	524: "A Timeout Occurred",
	525: "SSL Handshake Failed",
	526: "Invalid SSL Certificate",
	527: "Railgun Error",
}

// Reason returns the canonical reason phrase for code, or "" when unknown.
func Reason(code int) string {
	if code == Unknown {
		return "Unknown"
	}
	if r := http.StatusText(code); r != "" {
		return r
	}
	return extraReasons[code]
}

func IsInformational(code int) bool { return code >= 100 && code < 200 }
func IsSuccess(code int) bool       { return code >= 200 && code < 300 }
func IsRedirection(code int) bool   { return code >= 300 && code < 400 }
func IsClientError(code int) bool   { return code >= 400 && code < 500 }
func IsServerError(code int) bool   { return code >= 500 && code < 600 }

// Status is the version, numeric code and reason phrase of one response.
type Status struct {
	Version string
	Code    int
	Reason  string
}

// New builds a status, falling back to the canonical reason when reason is
// empty.
func New(version string, code int, reason string) Status {
	if reason == "" {
		reason = Reason(code)
	}
	if reason == "" {
		reason = "Unhandled code " + strconv.Itoa(code)
	}
	return Status{Version: version, Code: code, Reason: reason}
}

// Synthetic builds a status for a response produced locally rather than read
// off the wire.
func Synthetic(message string) Status {
	return Status{Code: Unknown, Reason: message}
}

func (s Status) IsInformational() bool { return IsInformational(s.Code) }
func (s Status) IsSuccess() bool       { return IsSuccess(s.Code) }
func (s Status) IsRedirection() bool   { return IsRedirection(s.Code) }
func (s Status) IsClientError() bool   { return IsClientError(s.Code) }
func (s Status) IsServerError() bool   { return IsServerError(s.Code) }

// HasBody reports whether a response with this status may carry a body.
func (s Status) HasBody() bool {
	return !s.IsInformational() && s.Code != http.StatusNoContent && s.Code != http.StatusNotModified
}

func (s Status) String() string {
	if s.Version == "" {
		return fmt.Sprintf("%d %s", s.Code, s.Reason)
	}
	return fmt.Sprintf("%s %d %s", s.Version, s.Code, s.Reason)
}
