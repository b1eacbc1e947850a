package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/go-logr/logr"
	"github.com/jessevdk/go-flags"
	"github.com/logrusorgru/aurora/v3"
	"github.com/mattn/go-isatty"

	"github.com/WhileEndless/go-rawclient/pkg/client"
	"github.com/WhileEndless/go-rawclient/pkg/config"
	"github.com/WhileEndless/go-rawclient/pkg/content"
	"github.com/WhileEndless/go-rawclient/pkg/logging"
	"github.com/WhileEndless/go-rawclient/pkg/proxy"
	"github.com/WhileEndless/go-rawclient/pkg/request"
)

var opts struct {
	Config  string   `short:"c" long:"config" description:"Config file (default ./rawclient.yaml)"`
	Method  string   `short:"X" long:"method" default:"GET" choice:"GET" choice:"HEAD" choice:"POST" choice:"PUT" choice:"PATCH" choice:"DELETE" choice:"OPTIONS" description:"Request method"`
	Data    string   `short:"d" long:"data" description:"Request body sent as text/plain"`
	Form    []string `short:"F" long:"form" description:"Form field key=value, repeatable"`
	Upload  string   `short:"u" long:"upload" description:"Upload a file in chunks of chunk_size bytes"`
	Headers []string `short:"H" long:"header" description:"Extra header 'Key: Value', repeatable"`
	Remove  []string `long:"remove-header" description:"Drop a generated header, repeatable"`
	Expect  int      `short:"e" long:"expect" default:"200" description:"Status code that counts as success"`
	Output  string   `short:"o" long:"output" description:"Save the body to a file"`
	Proxy   string   `short:"p" long:"proxy" description:"Proxy URL, overrides the config"`
	XHR     bool     `long:"xhr" description:"Send as XMLHttpRequest"`
	NoSSL   bool     `long:"no-ssl" description:"Never escalate to TLS"`
	IP      bool     `long:"ip" description:"Print the public IP of the session and exit"`
	Include bool     `short:"i" long:"include" description:"Print response headers"`
	Dump    bool     `long:"dump" description:"Dump headers and connection metrics"`
	Verbose []bool   `short:"v" long:"verbose" description:"Log more, repeatable"`
	Args    struct {
		URL string `positional-arg-name:"url"`
	} `positional-args:"yes"`
}

func main() {
	if _, err := flags.Parse(&opts); err != nil {
		if flags.WroteHelp(err) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	log := logging.New(logging.Options{Verbosity: len(opts.Verbose)})
	if err := run(log); err != nil {
		log.Error(err, "request failed")
		os.Exit(1)
	}
}

func run(log logr.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, err := config.Load(opts.Config)
	if err != nil {
		return err
	}
	if len(opts.Verbose) > 1 {
		cfg.Debug = true
	}
	copts, err := cfg.ClientOptions(log)
	if err != nil {
		return err
	}
	if opts.Proxy != "" {
		p, err := proxy.ParseURL(opts.Proxy)
		if err != nil {
			return err
		}
		copts.Proxy, copts.Pool = p, nil
	}

	c, err := client.New(ctx, copts)
	if err != nil {
		return err
	}
	defer c.Close()

	tty := isatty.IsTerminal(os.Stdout.Fd())
	r := renderer{au: aurora.NewAurora(tty), out: os.Stdout}

	if opts.IP {
		ip, err := c.FetchIP(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, ip)
		return nil
	}
	if opts.Args.URL == "" {
		return fmt.Errorf("a url is required")
	}

	req, closeBody, err := buildRequest(cfg.ChunkSize)
	if err != nil {
		return err
	}
	defer closeBody()
	if tty && (opts.Output != "" || opts.Upload != "") {
		req.Progress = request.NewProgress(func(p int) { fmt.Fprintf(os.Stderr, "\r%3d%%", p) })
	}

	if opts.Output != "" {
		req.SavePath = opts.Output
	}
	res := c.Do(ctx, req)
	if req.Progress != nil {
		fmt.Fprintln(os.Stderr)
	}

	r.Summary(res, c.Counter())
	if opts.Include {
		r.Headers(res)
	}
	if opts.Dump {
		r.Dump(res)
	}
	if opts.Output == "" && req.Method != request.HEAD {
		r.Body(res)
	}
	if !res.Validate() {
		return fmt.Errorf("%s answered %s", res.URL, res.Status)
	}
	return nil
}

func buildRequest(chunkSize int64) (*request.Request, func(), error) {
	method := request.Method(strings.ToUpper(opts.Method))
	req := request.New(method, opts.Args.URL)
	noop := func() {}

	switch {
	case opts.Upload != "":
		body, err := content.NewStreamBody(opts.Upload, false)
		if err != nil {
			return nil, noop, err
		}
		req.Body = body.Chunked(chunkSize)
		noop = func() { body.Close() }
		if method == request.GET {
			req.Method = request.PUT
		}
	case len(opts.Form) > 0:
		form := content.NewForm()
		for _, kv := range opts.Form {
			k, v, ok := strings.Cut(kv, "=")
			if !ok {
				return nil, noop, fmt.Errorf("form field %q is not key=value", kv)
			}
			form.Add(k, v)
		}
		req.Body = form
	case opts.Data != "":
		req.Body = content.NewString(content.PlainText, opts.Data)
	}
	if req.Body != nil && req.Method == request.GET {
		req.Method = request.POST
	}
	if method == request.OPTIONS {
		req.PreflightMethod = request.GET
	}

	for _, h := range opts.Headers {
		k, v, ok := strings.Cut(h, ":")
		if !ok {
			return nil, noop, fmt.Errorf("header %q is not 'Key: Value'", h)
		}
		req.SetHeader(strings.TrimSpace(k), strings.TrimSpace(v))
	}
	for _, h := range opts.Remove {
		req.RemoveHeader(h)
	}
	req.Expect = opts.Expect
	req.XHR = opts.XHR
	req.NoSSL = opts.NoSSL
	return req, noop, nil
}
