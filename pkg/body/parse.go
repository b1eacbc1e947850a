package body

import (
	"bytes"
	stderrors "errors"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/WhileEndless/go-rawclient/pkg/chunked"
	"github.com/WhileEndless/go-rawclient/pkg/constants"
	"github.com/WhileEndless/go-rawclient/pkg/errors"
	"github.com/WhileEndless/go-rawclient/pkg/headers"
)

// Options control how Parse materializes a body.
type Options struct {
	// DecodeBody false together with SaveDataMode skips the body entirely.
	DecodeBody   bool
	SaveDataMode bool
	// SavePath selects the file interpreter when the response declares a
	// content type.
	SavePath     string
	Progress     ProgressListener
	PollInterval time.Duration
	Logger       logr.Logger
}

// Parse reads the body that follows a response head.
func Parse(h *headers.Headers, r io.Reader, opts Options) (Body, error) {
	log := opts.Logger
	if log.GetSink() == nil {
		log = logr.Discard()
	}

	if !opts.DecodeBody && opts.SaveDataMode {
		return Text{Content: constants.DecodeDisabledBody}, nil
	}

	encoding := strings.ToLower(strings.TrimSpace(h.Value("Content-Encoding")))
	lengthValue, hasLength := h.Lookup("Content-Length")
	isChunked := strings.Contains(strings.ToLower(h.Value("Transfer-Encoding")), "chunked")
	contentType := h.Value("Content-Type")

	if h.Has("Location") {
		return Text{}, nil
	}

	var size int64
	switch {
	case hasLength:
		n, err := strconv.ParseInt(strings.TrimSpace(lengthValue), 10, 64)
		if err != nil {
			return nil, errors.NewProtocolError("invalid content-length", err)
		}
		if n < 0 {
			return nil, errors.NewProtocolError("negative content-length not allowed", nil)
		}
		if n > constants.MaxContentLength {
			return nil, errors.NewProtocolError("content-length too large", nil)
		}
		size = n
	case isChunked:
		data, err := chunked.Decode(r)
		if stderrors.Is(err, chunked.ErrEmpty) {
			log.V(1).Info("chunked body carried no data")
			return Text{}, nil
		}
		if err != nil {
			return nil, errors.NewProtocolError("decoding chunked body", err)
		}
		r = bytes.NewReader(data)
		size = int64(len(data))
	default:
		return nil, errors.NewProtocolError("response declares neither Content-Length nor chunked Transfer-Encoding", nil)
	}

	if size == 0 {
		return Text{}, nil
	}

	var interp Interpreter
	if opts.SavePath != "" && contentType != "" {
		interp = NewFileInterpreter(size, encoding, opts.SavePath)
	} else {
		interp = NewStringInterpreter(size, encoding)
	}

	if opts.Progress == nil {
		return interp.Interpret(r)
	}

	stop := watch(interp, opts.Progress, opts.PollInterval)
	b, err := interp.Interpret(r)
	stop()
	if err == nil {
		opts.Progress.SetProgress(100)
	}
	return b, err
}

// watch samples interp on its own goroutine until stop is called.
func watch(interp Interpreter, l ProgressListener, every time.Duration) (stop func()) {
	if every <= 0 {
		every = constants.ProgressPollInterval
	}
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				l.SetProgress(interp.Progress())
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}
