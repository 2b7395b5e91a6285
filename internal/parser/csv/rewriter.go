package csv

import (
	"bufio"
	"bytes"
	"io"
)

// streamingRewriter is an io.Reader that performs a rolling find/replace of
// pat with repl without buffering the whole stream. Matches that span chunk
// boundaries are caught by withholding the last len(pat)-1 unmatched bytes of
// every block and prepending them to the next one. Replacement output is
// never rescanned.
type streamingRewriter struct {
	br    *bufio.Reader
	pat   []byte
	repl  []byte
	carry []byte
	buf   bytes.Buffer
	chunk []byte
	eof   bool
}

func newStreamingRewriter(r io.Reader, pat, repl []byte) *streamingRewriter {
	k := len(pat) - 1
	if k < 0 {
		k = 0
	}
	return &streamingRewriter{
		br:    bufio.NewReaderSize(r, 64*1024),
		pat:   pat,
		repl:  repl,
		carry: make([]byte, 0, k),
		chunk: make([]byte, 64*1024),
	}
}

// wrapReplacements chains one rewriter per pattern, applied in the given
// order. Empty patterns are skipped.
func wrapReplacements(r io.Reader, pairs [][2]string) io.Reader {
	for _, p := range pairs {
		if p[0] == "" || p[0] == p[1] {
			continue
		}
		r = newStreamingRewriter(r, []byte(p[0]), []byte(p[1]))
	}
	return r
}

// Read serves buffered output, refilling it one rewritten chunk at a time.
// On EOF the remaining carry is flushed.
func (sr *streamingRewriter) Read(p []byte) (int, error) {
	for sr.buf.Len() == 0 {
		if sr.eof {
			return 0, io.EOF
		}

		n, rerr := sr.br.Read(sr.chunk)
		if rerr != nil && rerr != io.EOF {
			return 0, rerr
		}
		block := make([]byte, 0, len(sr.carry)+n)
		block = append(block, sr.carry...)
		block = append(block, sr.chunk[:n]...)
		sr.eof = rerr == io.EOF
		sr.rewrite(block, sr.eof)
	}
	return sr.buf.Read(p)
}

// rewrite replaces every complete match in block and keeps the trailing
// len(pat)-1 raw bytes as carry, since they may start a match that the next
// chunk completes. When final is set nothing is carried.
func (sr *streamingRewriter) rewrite(block []byte, final bool) {
	for {
		i := bytes.Index(block, sr.pat)
		if i < 0 {
			break
		}
		sr.buf.Write(block[:i])
		sr.buf.Write(sr.repl)
		block = block[i+len(sr.pat):]
	}

	k := len(sr.pat) - 1
	if final || k <= 0 {
		sr.buf.Write(block)
		sr.carry = sr.carry[:0]
		return
	}
	if len(block) > k {
		sr.buf.Write(block[:len(block)-k])
		block = block[len(block)-k:]
	}
	sr.carry = append(sr.carry[:0], block...)
}
