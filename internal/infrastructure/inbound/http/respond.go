package http

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"slices"
	"strconv"

	"github.com/sophialabs/expectmock/internal/domain/expectation"
	"github.com/sophialabs/expectmock/internal/infrastructure/services"
)

// writeOutcome completes the exchange the way the dispatcher decided.
func (s *Server) writeOutcome(ctx context.Context, w http.ResponseWriter, out services.Outcome) {
	switch out.Kind {
	case services.OutcomeDrop:
		conn, _ := s.hijack(w)
		_ = conn.Close()

	case services.OutcomeRaw:
		conn, rw := s.hijack(w)
		defer func() { _ = conn.Close() }()
		if _, err := rw.Write(out.Raw); err == nil {
			_ = rw.Flush()
		}

	case services.OutcomeFailure:
		status := http.StatusInternalServerError
		if out.Response != nil && out.Response.StatusCode != 0 {
			status = out.Response.StatusCode
		}
		w.WriteHeader(status)

	default:
		s.writeResponse(ctx, w, out.Response)
	}
}

// hijack takes over the connection. When the writer cannot be hijacked (HTTP/2)
// the response is aborted instead.
func (s *Server) hijack(w http.ResponseWriter) (net.Conn, *bufio.ReadWriter) {
	conn, rw, err := http.NewResponseController(w).Hijack()
	if err != nil {
		s.logger.Debug("connection cannot be hijacked, aborting response", "error", err)
		panic(http.ErrAbortHandler)
	}
	return conn, rw
}

func (s *Server) writeResponse(ctx context.Context, w http.ResponseWriter, resp *expectation.Response) {
	status := statusOf(resp)
	header := w.Header()
	copyResponseHeaders(header, resp)

	if needsRawWrite(resp) {
		if conn, rw, err := http.NewResponseController(w).Hijack(); err == nil {
			s.writeRawResponse(ctx, conn, rw, resp, header)
			return
		}
		s.logger.Debug("connection options ignored, writer cannot be hijacked")
	}

	if !bodyAllowed(status) {
		w.WriteHeader(status)
		return
	}

	if co := resp.ConnectionOptions; co != nil && co.ChunkSize > 0 {
		w.WriteHeader(status)
		rc := http.NewResponseController(w)
		for chunk := range slices.Chunk(resp.Body, co.ChunkSize) {
			if _, err := w.Write(chunk); err != nil {
				s.logger.Debug("failed to write response chunk", "error", err)
				return
			}
			_ = rc.Flush()
		}
		return
	}

	header.Set("Content-Length", strconv.Itoa(len(resp.Body)))
	w.WriteHeader(status)
	if _, err := w.Write(resp.Body); err != nil {
		s.logger.Debug("failed to write response body", "error", err)
	}
}

// writeRawResponse writes resp directly onto a hijacked connection, then closes
// it after the configured socket delay.
func (s *Server) writeRawResponse(ctx context.Context, conn net.Conn, rw *bufio.ReadWriter, resp *expectation.Response, header http.Header) {
	defer func() { _ = conn.Close() }()

	if _, err := rw.Write(rawResponse(resp, header)); err != nil {
		s.logger.Debug("failed to write raw response", "error", err)
		return
	}
	if err := rw.Flush(); err != nil {
		s.logger.Debug("failed to flush raw response", "error", err)
		return
	}
	if delay := resp.ConnectionOptions.CloseDelay(); delay > 0 {
		_ = s.deps.Clock.SleepContext(ctx, delay)
	}
}

func rawResponse(resp *expectation.Response, header http.Header) []byte {
	status := statusOf(resp)
	reason := resp.ReasonPhrase
	if reason == "" {
		reason = http.StatusText(status)
	}

	co := expectation.ConnectionOptions{}
	if resp.ConnectionOptions != nil {
		co = *resp.ConnectionOptions
	}

	header = header.Clone()
	switch {
	case co.SuppressContentLengthHeader:
		header.Del("Content-Length")
	case co.ContentLengthHeaderOverride != nil:
		header.Set("Content-Length", strconv.Itoa(*co.ContentLengthHeaderOverride))
	default:
		header.Set("Content-Length", strconv.Itoa(len(resp.Body)))
	}

	if co.SuppressConnectionHeader {
		header.Del("Connection")
	} else {
		keepAlive := !co.CloseSocket
		if co.KeepAliveOverride != nil {
			keepAlive = *co.KeepAliveOverride
		}
		if keepAlive {
			header.Set("Connection", "keep-alive")
		} else {
			header.Set("Connection", "close")
		}
	}

	var b bytes.Buffer
	fmt.Fprintf(&b, "HTTP/1.1 %d %s\r\n", status, reason)
	_ = header.Write(&b)
	b.WriteString("\r\n")
	b.Write(resp.Body)
	return b.Bytes()
}

// needsRawWrite reports whether resp asks for something net/http's writer
// cannot express: a custom reason phrase or connection-level overrides.
func needsRawWrite(resp *expectation.Response) bool {
	if resp.ReasonPhrase != "" && resp.ReasonPhrase != http.StatusText(statusOf(resp)) {
		return true
	}
	co := resp.ConnectionOptions
	if co == nil {
		return false
	}
	return co.SuppressContentLengthHeader ||
		co.ContentLengthHeaderOverride != nil ||
		co.SuppressConnectionHeader ||
		co.KeepAliveOverride != nil ||
		co.CloseSocket
}

func copyResponseHeaders(dst http.Header, resp *expectation.Response) {
	for _, f := range resp.Headers {
		switch name := http.CanonicalHeaderKey(f.Name); name {
		case "Content-Length", "Transfer-Encoding":
			// Computed from the body actually written.
		default:
			for _, v := range f.Values {
				dst.Add(name, v)
			}
		}
	}

	for _, c := range resp.Cookies {
		for _, v := range c.Values {
			if line := (&http.Cookie{Name: c.Name, Value: v}).String(); line != "" {
				dst.Add("Set-Cookie", line)
			}
		}
	}

	if resp.ContentType != "" && dst.Get("Content-Type") == "" {
		dst.Set("Content-Type", resp.ContentType)
	}
}

func statusOf(resp *expectation.Response) int {
	if resp == nil || resp.StatusCode == 0 {
		return http.StatusOK
	}
	return resp.StatusCode
}

func bodyAllowed(status int) bool {
	switch {
	case status >= 100 && status <= 199:
		return false
	case status == http.StatusNoContent, status == http.StatusNotModified:
		return false
	}
	return true
}
