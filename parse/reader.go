package parse

import "io"

// Run drives p off r to completion: Write with whatever chunk sizes
// r.Read hands back, then Close. It's a convenience for the common
// case of parsing a whole io.Reader rather than feeding chunks by
// hand; call it from its own goroutine for non-blocking use.
func Run(p *Parser, r io.Reader) error {
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if werr := p.Write(buf[:n]); werr != nil {
				p.Close()
				return werr
			}
		}
		if err == io.EOF {
			return p.Close()
		}
		if err != nil {
			p.Close()
			return err
		}
	}
}
