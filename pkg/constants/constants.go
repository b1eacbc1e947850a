// Package constants defines magic numbers and default values used throughout go-rawclient
package constants

import "time"

// Connection timeouts and limits
const (
	DefaultConnTimeout  = 10 * time.Second
	DefaultReadTimeout  = 30 * time.Second
	DefaultKeepAlive    = 30 * time.Second
	DefaultMaxAttempts  = 6
	MaxRedirects        = 5
	TooManyRequestsWait = 30 * time.Second
)

// Socket options
const (
	SocketBufferSize = 64 * 1024
)

// Proxy pool
const (
	ProxyPollInterval     = 2 * time.Second
	DefaultHTTPProxyPort  = 8080
	DefaultHTTPSProxyPort = 443
	DefaultSOCKSProxyPort = 1080
)

// HTTP limits
const (
	MaxHeaderBytes   = 64 * 1024
	MaxContentLength = 1024 * 1024 * 1024 * 1024 // 1TB
	DefaultHTTPPort  = 80
	DefaultHTTPSPort = 443
)

// Body handling
const (
	FileBufferSize       = 4096
	DefaultChunkSize     = 1024 * 1024
	ProgressPollInterval = 50 * time.Millisecond
	DecodeDisabledBody   = "Body decoding is turned off for this request"
)

// Buffer limits
const (
	DefaultBodyMemLimit = 4 * 1024 * 1024 // 4MB
)
