// Package parse implements the streaming parser state machine: it turns
// a push-mode byte stream (fed in whatever chunk sizes the caller
// happens to have) into an ordered sequence of entries, transparently
// decompressing a gzip-wrapped stream.
//
// The source models this as an async generator pumped by a chain of
// chunk/flush/end event handlers, with an internal FIFO of queued
// entries and a single "active" one at a time. Here the ordering
// invariant falls out differently: every header, meta, and body byte
// is consumed by one sequential loop over the input, and each new
// entry is handed to OnEntry synchronously, on that same call stack,
// before any of its body bytes are fed. A consumer that attaches
// OnData/OnEnd inside OnEntry is therefore guaranteed to see every
// byte — there's no window where the parser could race ahead and
// deliver body data to an entry nobody has attached to yet.
package parse

import (
	"errors"
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"

	"github.com/tarstream/tarstream/entry"
	"github.com/tarstream/tarstream/header"
)

type state int

const (
	stateBegin state = iota
	stateBody
	stateMeta
	stateIgnore
)

// Severity classifies a Notice per the error-handling taxonomy:
// warnings are recoverable, errors stop forward progress on just the
// affected entry, fatal errors stop the whole parse.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
	SeverityFatal
)

// Notice is one diagnostic the parser produced.
type Notice struct {
	Severity Severity
	Message  string
	Err      error
}

// Options configures a Parser.
type Options struct {
	// OnEntry is called once per parsed entry, synchronously, before any
	// of its body bytes are fed to it. A consumer that wants the body
	// must call e.OnData/e.OnEnd from inside this callback.
	OnEntry func(e *entry.ReadEntry)
	// Filter decides whether to forward an entry's body bytes to the
	// caller. Entries it rejects are still passed to OnEntry, but with
	// Ignore set so no data callback ever fires.
	Filter func(path string, e *entry.ReadEntry) bool
	// OnNotice receives every diagnostic the parser produces. May be nil.
	OnNotice func(Notice)
	// Strict promotes every warning to SeverityError. It does not stop
	// the parse: the parser keeps scanning after the block or entry that
	// raised it.
	Strict bool
	// MaxMetaEntrySize bounds how large a Pax/GNU-long-* meta entry body
	// gets accumulated before it's given up on and skipped. Zero means
	// the default of 1 MiB.
	MaxMetaEntrySize int64
}

const defaultMaxMetaEntrySize = 1 << 20

// Parser turns a push-mode byte stream into entries, detecting a
// gzip-compressed stream from its first two bytes and transparently
// inflating it.
//
// When the stream turns out to be gzip-compressed, OnEntry/OnData/
// OnEnd fire from an internal goroutine that drives the inflater
// rather than from the goroutine calling Write — necessary because
// compress/gzip's Reader is pull-based and Write is push-based. Either
// way they fire from exactly one goroutine at a time, never both.
type Parser struct {
	opts Options

	mu       sync.Mutex
	fatalErr error

	sniffed  []byte
	decided  bool
	isGzip   bool
	gzWriter *io.PipeWriter
	gzDone   chan struct{}

	// State machine fields. Touched only by whichever single goroutine
	// is driving feedPlain at a time: the caller's own goroutine in the
	// plain case, or the internal inflate goroutine in the gzip case —
	// never both, since the gzip/plain decision is made once and is
	// final.
	st              state
	hdrBuf          []byte
	active          *entry.ReadEntry
	pendingExtended *header.Pax
	globalPax       *header.Pax
	pendingGNUPath  string
	pendingGNULink  string

	metaType        byte
	metaBuf         []byte
	metaRemain      int64
	metaBlockRemain int64
	ignoreRemain    int64
}

// New builds a ready-to-use Parser.
func New(opts Options) *Parser {
	if opts.MaxMetaEntrySize <= 0 {
		opts.MaxMetaEntrySize = defaultMaxMetaEntrySize
	}
	return &Parser{opts: opts}
}

// Err returns the first fatal error the parser hit, if any.
func (p *Parser) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fatalErr
}

func (p *Parser) setFatal(err error) {
	p.mu.Lock()
	if p.fatalErr == nil {
		p.fatalErr = err
	}
	p.mu.Unlock()
	p.notify(SeverityFatal, "parser stopped", err)
}

// notify reports a diagnostic. Strict mode promotes a warning to an
// error (it still only affects the entry or block in question, never
// the whole parse — the parser keeps scanning either way).
func (p *Parser) notify(sev Severity, msg string, err error) {
	if p.opts.Strict && sev == SeverityWarning {
		sev = SeverityError
	}
	if p.opts.OnNotice != nil {
		p.opts.OnNotice(Notice{Severity: sev, Message: msg, Err: err})
	}
}

// Write feeds the next chunk of raw archive bytes. Chunking never
// changes the resulting entry sequence or body bytes: a byte sequence
// split any way produces the same output as feeding it whole.
func (p *Parser) Write(chunk []byte) error {
	if ferr := p.Err(); ferr != nil {
		return ferr
	}
	if !p.decided {
		p.sniffed = append(p.sniffed, chunk...)
		if len(p.sniffed) < 2 {
			return nil
		}
		p.decided = true
		p.isGzip = p.sniffed[0] == 0x1f && p.sniffed[1] == 0x8b
		chunk = p.sniffed
		p.sniffed = nil
	}

	if p.isGzip {
		p.ensureGzipPipe()
		if _, werr := p.gzWriter.Write(chunk); werr != nil {
			if ferr := p.Err(); ferr != nil {
				return ferr
			}
			return werr
		}
		return nil
	}

	if ferr := p.feedPlain(chunk); ferr != nil {
		p.setFatal(ferr)
		return ferr
	}
	return nil
}

// Close signals end of input: it drains any in-flight gzip inflation
// and reports a fatal error if the stream ended with a header or body
// only partly consumed.
func (p *Parser) Close() error {
	if p.isGzip && p.gzWriter != nil {
		p.gzWriter.Close()
		<-p.gzDone
	}
	if len(p.hdrBuf) > 0 {
		p.setFatal(errTruncated)
	}
	if p.active != nil && p.active.BlockRemain > 0 {
		p.setFatal(errTruncated)
	}
	return p.Err()
}

var errTruncated = errors.New("parse: archive stream ended mid-block with data still pending")

func (p *Parser) ensureGzipPipe() {
	if p.gzWriter != nil {
		return
	}
	pr, pw := io.Pipe()
	p.gzWriter = pw
	p.gzDone = make(chan struct{})
	go p.runGzip(pr)
}

// runGzip bridges the push-mode Write API to klauspost/compress/gzip's
// pull-mode Reader: it owns the pipe reader side, inflating as bytes
// become available and feeding the plaintext through the very same
// state machine the plain (uncompressed) path uses.
func (p *Parser) runGzip(pr *io.PipeReader) {
	defer close(p.gzDone)
	gzr, err := gzip.NewReader(pr)
	if err != nil {
		p.setFatal(err)
		pr.CloseWithError(err)
		return
	}
	buf := make([]byte, 32*1024)
	for {
		n, rerr := gzr.Read(buf)
		if n > 0 {
			if ferr := p.feedPlain(buf[:n]); ferr != nil {
				p.setFatal(ferr)
				pr.CloseWithError(ferr)
				return
			}
		}
		if rerr != nil {
			if rerr != io.EOF {
				p.setFatal(rerr)
			}
			return
		}
	}
}

// feedPlain drives the begin/body/meta/ignore state machine over one
// chunk of decompressed (or never-compressed) archive bytes.
func (p *Parser) feedPlain(chunk []byte) error {
	for len(chunk) > 0 {
		switch p.st {
		case stateBegin:
			need := header.BlockSize - len(p.hdrBuf)
			take := min(need, len(chunk))
			p.hdrBuf = append(p.hdrBuf, chunk[:take]...)
			chunk = chunk[take:]
			if len(p.hdrBuf) < header.BlockSize {
				return nil
			}
			block := p.hdrBuf
			p.hdrBuf = nil
			if err := p.handleHeaderBlock(block); err != nil {
				return err
			}

		case stateBody:
			n := min(p.active.BlockRemain, int64(len(chunk)))
			if _, err := p.active.Feed(chunk[:n]); err != nil {
				return err
			}
			chunk = chunk[n:]
			if p.active.BlockRemain == 0 {
				p.active = nil
				p.st = stateBegin
			}

		case stateMeta:
			n := min(p.metaBlockRemain, int64(len(chunk)))
			data := chunk[:n]
			chunk = chunk[n:]
			fwd := min(n, p.metaRemain)
			p.metaBuf = append(p.metaBuf, data[:fwd]...)
			p.metaRemain -= fwd
			p.metaBlockRemain -= n
			if p.metaBlockRemain == 0 {
				if err := p.dispatchMeta(); err != nil {
					return err
				}
				p.st = stateBegin
			}

		case stateIgnore:
			n := min(p.ignoreRemain, int64(len(chunk)))
			chunk = chunk[n:]
			p.ignoreRemain -= n
			if p.ignoreRemain == 0 {
				p.st = stateBegin
			}
		}
	}
	return nil
}

func min[T int | int64](a, b T) T {
	if a < b {
		return a
	}
	return b
}

// handleHeaderBlock decodes one candidate header block and decides the
// next state: begin again (null block or bad checksum), meta, ignore,
// or body.
func (p *Parser) handleHeaderBlock(block []byte) error {
	h, err := header.Decode(block)
	if err != nil {
		return err
	}
	if h.NullBlock {
		// The parser itself never treats this as end of archive; it's
		// up to the caller to decide how many trailing null blocks
		// mean EOF and to stop writing.
		return nil
	}
	if !h.CksumValid {
		p.notify(SeverityWarning, "invalid header checksum, skipping block", nil)
		return nil
	}

	if header.IsMeta(h.TypeKey) {
		if h.Size > p.opts.MaxMetaEntrySize {
			p.notify(SeverityWarning, "meta entry exceeds MaxMetaEntrySize, ignoring", nil)
			p.st = stateIgnore
			p.ignoreRemain = header.BlocksFor(h.Size) * header.BlockSize
			return nil
		}
		p.st = stateMeta
		p.metaType = h.TypeKey
		p.metaBuf = p.metaBuf[:0]
		p.metaRemain = h.Size
		p.metaBlockRemain = header.BlocksFor(h.Size) * header.BlockSize
		return nil
	}

	if p.pendingGNUPath != "" {
		h.Path = p.pendingGNUPath
		p.pendingGNUPath = ""
	}
	if p.pendingGNULink != "" {
		h.Linkpath = p.pendingGNULink
		p.pendingGNULink = ""
	}
	extended := p.pendingExtended
	p.pendingExtended = nil

	re := entry.NewReadEntry(h, extended, p.globalPax)
	switch {
	case header.TypeName(h.TypeKey) == "":
		p.notify(SeverityWarning, "unknown entry type, ignoring body", nil)
		re.Ignore = true
	case p.opts.Filter != nil && !p.opts.Filter(re.Path(), re):
		re.Ignore = true
	}

	if p.opts.OnEntry != nil {
		p.opts.OnEntry(re)
	}

	if re.Remain == 0 {
		re.End()
		return nil
	}
	p.active = re
	p.st = stateBody
	return nil
}

// dispatchMeta applies an accumulated meta-entry body once its block
// count is exhausted: Pax extended/global headers become pending
// overrides, GNU long-name/long-link become plain path/linkpath
// overrides for the very next header.
func (p *Parser) dispatchMeta() error {
	body := p.metaBuf
	switch p.metaType {
	case header.TypeXHeader:
		var prior map[string]string
		if p.pendingExtended != nil {
			prior = p.pendingExtended.Fields
		}
		pax, err := header.ParsePax(body, prior, false)
		if err != nil {
			p.notify(SeverityError, "malformed pax extended header", err)
			return nil
		}
		p.pendingExtended = pax

	case header.TypeXGlobalHeader:
		var prior map[string]string
		if p.globalPax != nil {
			prior = p.globalPax.Fields
		}
		pax, err := header.ParsePax(body, prior, true)
		if err != nil {
			p.notify(SeverityError, "malformed pax global header", err)
			return nil
		}
		p.globalPax = pax

	case header.TypeGNULongName:
		p.pendingGNUPath = trimNUL(body)

	case header.TypeGNULongLink:
		p.pendingGNULink = trimNUL(body)
	}
	return nil
}

func trimNUL(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
