package request

import (
	"sync"

	"github.com/WhileEndless/go-rawclient/pkg/response"
)

// ProgressFunc forwards strictly increasing percentages to fn.
type ProgressFunc struct {
	mu   sync.Mutex
	last int
	fn   func(percent int)
}

// NewProgress wraps fn.
func NewProgress(fn func(percent int)) *ProgressFunc {
	return &ProgressFunc{last: -1, fn: fn}
}

// SetProgress calls fn when percent is above the last forwarded value.
func (p *ProgressFunc) SetProgress(percent int) {
	p.mu.Lock()
	if percent <= p.last {
		p.mu.Unlock()
		return
	}
	p.last = percent
	p.mu.Unlock()
	p.fn(percent)
}

// Last is the most recent forwarded percentage, or -1.
func (p *ProgressFunc) Last() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// PostExecuteHandler is told the outcome of a request once dispatch ends.
type PostExecuteHandler interface {
	OnSuccess(req *Request, res *response.Response)
	OnFailure(req *Request, res *response.Response)
}

// PostExecuteFuncs adapts two functions to PostExecuteHandler. Nil
// functions are skipped.
type PostExecuteFuncs struct {
	Success func(req *Request, res *response.Response)
	Failure func(req *Request, res *response.Response)
}

func (f PostExecuteFuncs) OnSuccess(req *Request, res *response.Response) {
	if f.Success != nil {
		f.Success(req, res)
	}
}

func (f PostExecuteFuncs) OnFailure(req *Request, res *response.Response) {
	if f.Failure != nil {
		f.Failure(req, res)
	}
}
