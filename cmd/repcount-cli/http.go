package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"strings"
	"time"

	goahttp "goa.design/goa/v3/http"
)

// client talks to the control API of a running server.
type client struct {
	base string
	doer goahttp.Doer
}

func newClient(base string, timeout int, debug bool) *client {
	var (
		doer goahttp.Doer
	)
	{
		doer = &http.Client{Timeout: time.Duration(timeout) * time.Second}
		if debug {
			doer = goahttp.NewDebugDoer(doer)
		}
	}
	return &client{base: strings.TrimSuffix(base, "/"), doer: doer}
}

func (c *client) run(ctx context.Context, cmd string, args []string) (any, error) {
	switch cmd {
	case "start":
		fs := flag.NewFlagSet("start", flag.ContinueOnError)
		exerciseF := fs.String("exercise", "", "Exercise identifier")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		return c.call(ctx, "POST", "/api/v1/session/start", map[string]string{"exercise": *exerciseF})
	case "stop":
		return c.call(ctx, "POST", "/api/v1/session/stop", nil)
	case "count":
		return c.call(ctx, "GET", "/api/v1/session/count", nil)
	default:
		return c.call(ctx, "GET", "/api/v1/session", nil)
	}
}

func (c *client) call(ctx context.Context, method, path string, body any) (any, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, nil)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		if err := goahttp.RequestEncoder(req).Encode(body); err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
	}

	resp, err := c.doer.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out map[string]any
	if err := goahttp.ResponseDecoder(resp).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response (%s): %w", resp.Status, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("%s: %v", resp.Status, out["error"])
	}
	return out, nil
}
