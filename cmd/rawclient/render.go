package main

import (
	"fmt"
	"io"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/dustin/go-humanize"
	"github.com/logrusorgru/aurora/v3"

	"github.com/WhileEndless/go-rawclient/pkg/body"
	"github.com/WhileEndless/go-rawclient/pkg/counter"
	"github.com/WhileEndless/go-rawclient/pkg/response"
)

const (
	okStyle     aurora.Color = aurora.GreenFg
	warnStyle   aurora.Color = aurora.YellowFg
	failStyle   aurora.Color = aurora.RedFg
	infoStyle   aurora.Color = aurora.BlackFg | aurora.BrightFg
	addrStyle   aurora.Color = aurora.BlueFg
	numberStyle aurora.Color = aurora.CyanFg
)

type renderer struct {
	au  aurora.Aurora
	out io.Writer
}

func (r renderer) statusStyle(res *response.Response) aurora.Color {
	switch {
	case res.Synthetic():
		return failStyle
	case res.Validate():
		return okStyle
	case res.Status.IsRedirection():
		return warnStyle
	default:
		return failStyle
	}
}

// Summary prints the status, the final URL, timings and session traffic.
func (r renderer) Summary(res *response.Response, c *counter.DataCounter) {
	fmt.Fprintf(r.out, "%s %s\n",
		r.au.Colorize(res.Status.String(), r.statusStyle(res)),
		r.au.Colorize(res.URL, addrStyle))
	if res.Synthetic() {
		return
	}
	m := res.Metrics
	fmt.Fprintf(r.out, "%s %s  %s %s  %s %s\n",
		r.au.Colorize("connect", infoStyle), r.au.Colorize(m.ConnectionTime().Round(time.Millisecond), numberStyle),
		r.au.Colorize("ttfb", infoStyle), r.au.Colorize(m.TTFB.Round(time.Millisecond), numberStyle),
		r.au.Colorize("total", infoStyle), r.au.Colorize(m.TotalTime.Round(time.Millisecond), numberStyle))
	if m.TLSVersion != "" {
		fmt.Fprintf(r.out, "%s %s %s\n", r.au.Colorize("tls", infoStyle), m.TLSVersion, m.CipherSuite)
	}
	if c != nil {
		fmt.Fprintf(r.out, "%s %s  %s %s\n",
			r.au.Colorize("sent", infoStyle), r.au.Colorize(humanize.Bytes(uint64(c.Up())), numberStyle),
			r.au.Colorize("received", infoStyle), r.au.Colorize(humanize.Bytes(uint64(c.Down())), numberStyle))
	}
}

// Headers prints the response header block.
func (r renderer) Headers(res *response.Response) {
	for _, e := range res.Headers.Entries() {
		fmt.Fprintf(r.out, "%s: %s\n", r.au.Colorize(e.Key, infoStyle), e.Value)
	}
	fmt.Fprintln(r.out)
}

// Dump prints headers and metrics in full.
func (r renderer) Dump(res *response.Response) {
	cfg := spew.ConfigState{Indent: "  ", DisablePointerAddresses: true, SortKeys: true}
	fmt.Fprint(r.out, cfg.Sdump(res.Headers.Entries(), res.Metrics))
}

// Body prints a text body or where a file body was saved.
func (r renderer) Body(res *response.Response) {
	switch b := res.Body.(type) {
	case body.File:
		fmt.Fprintf(r.out, "saved %s (%s)\n", r.au.Colorize(b.Path, addrStyle), humanize.Bytes(uint64(b.Size)))
	default:
		if content := res.Content(); content != "" {
			fmt.Fprintln(r.out, content)
		}
	}
}
