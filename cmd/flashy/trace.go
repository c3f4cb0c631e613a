package main

import (
	"fmt"
	"io"
	"net/http"
	"time"
)

// tracingTransport prints one coloured line per backend exchange.
type tracingTransport struct {
	base http.RoundTripper
	out  io.Writer
}

func (t *tracingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.base.RoundTrip(req)
	elapsed := time.Since(start).Round(time.Millisecond)

	method := fmt.Sprintf(" %-7s", req.Method)
	if colour, ok := methodColors[req.Method]; ok {
		method = colourise(colour, method)
	}
	if err != nil {
		fmt.Fprintf(t.out, "[%s] %s %s %s\n", method, req.URL.Path, colourise(Red, err.Error()), elapsed)
		return nil, err
	}
	status := colourise(statusColor(resp.StatusCode), fmt.Sprintf("%d", resp.StatusCode))
	fmt.Fprintf(t.out, "[%s] %s %s %s\n", method, req.URL.Path, status, elapsed)
	return resp, nil
}
