// Package entry implements the lazy body-byte producer/consumer contract
// and ReadEntry (driven by the parser), its one implementation, per
// spec.md's DESIGN NOTES §9. The write side (pack.Archiver.WriteEntry)
// does not use this package; it writes straight to an io.Writer.
//
// The source this is distilled from models an entry as a stream object
// inheriting event-emitter behavior (onData/onEnd callbacks, write/end
// methods, emittedEnd flag) from a mini-stream base via prototype
// inheritance. Go has no prototype inheritance and no implicit event
// loop, so this package restates the same capability contract as a
// small interface plus a synchronous callback-registry implementation:
// Write delivers bytes straight to any registered OnData callback before
// returning, and End does the same for OnEnd. There is no goroutine and
// no channel here — every suspension point the spec cares about (file
// I/O, mkdir, ...) happens inside the registered callbacks themselves,
// which is consistent with DESIGN NOTES §9's "the mechanism is free."
package entry

// Sink is the capability contract an entry exposes to its producer
// (something that calls Write/End) and to its observers (something that
// calls OnData/OnEnd). Concrete entry kinds (File, Directory, Link, ...)
// are tagged values carried alongside a Sink, not subclasses of it.
type Sink interface {
	Write(p []byte) (int, error)
	End()
	OnData(func(p []byte))
	OnEnd(func())
	EmittedEnd() bool
}

// Base is an embeddable Sink implementation: a synchronous callback
// registry. Zero value is ready to use.
type Base struct {
	onData []func([]byte)
	onEnd  []func()
	ended  bool
}

// Write forwards p to every registered OnData callback in order, then
// reports len(p), nil (no data callback is permitted to signal an error
// back to the producer — per spec.md §7 a corrupt *body* is never the
// individual write's fault, only a Remain/BlockRemain bookkeeping error
// is, and ReadEntry.Feed already validates that before calling Write).
func (b *Base) Write(p []byte) (int, error) {
	for _, cb := range b.onData {
		cb(p)
	}
	return len(p), nil
}

// End marks the entry finished and fires every registered OnEnd
// callback exactly once; subsequent calls are no-ops.
func (b *Base) End() {
	if b.ended {
		return
	}
	b.ended = true
	for _, cb := range b.onEnd {
		cb()
	}
}

func (b *Base) OnData(cb func([]byte)) { b.onData = append(b.onData, cb) }
func (b *Base) OnEnd(cb func())        { b.onEnd = append(b.onEnd, cb) }
func (b *Base) EmittedEnd() bool       { return b.ended }
