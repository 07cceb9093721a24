package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/valyala/fasthttp"
)

// annotated-probe performs liveness/readiness checks against a running
// annotated server. Intended for CI and deployment health gates where
// pulling in curl is undesirable.
func main() {
	base := flag.String("addr", "http://127.0.0.1:4201", "base URL of the annotated server")
	timeout := flag.Duration("timeout", 2*time.Second, "per-request timeout")
	wait := flag.Duration("wait", 0, "keep retrying for this long before giving up")
	ready := flag.Bool("ready", false, "check /readyz in addition to /healthz")
	flag.Parse()

	paths := []string{"/healthz"}
	if *ready {
		paths = append(paths, "/readyz")
	}

	client := &fasthttp.Client{
		Name:            "annotated-probe",
		ReadTimeout:     *timeout,
		WriteTimeout:    *timeout,
		MaxConnsPerHost: 2,
	}

	deadline := time.Now().Add(*wait)
	for {
		err := probe(client, *base, paths, *timeout)
		if err == nil {
			fmt.Println("ok")
			return
		}
		if time.Now().After(deadline) {
			fmt.Fprintf(os.Stderr, "probe failed: %v\n", err)
			os.Exit(1)
		}
		time.Sleep(250 * time.Millisecond)
	}
}

func probe(client *fasthttp.Client, base string, paths []string, timeout time.Duration) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	for _, p := range paths {
		req.Reset()
		resp.Reset()
		req.SetRequestURI(base + p)
		req.Header.SetMethod(fasthttp.MethodGet)
		if err := client.DoTimeout(req, resp, timeout); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
		if code := resp.StatusCode(); code != fasthttp.StatusOK {
			return fmt.Errorf("%s: status %d", p, code)
		}
	}
	return nil
}
