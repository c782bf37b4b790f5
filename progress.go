package courier

import "io"

// ProgressSink observes upload progress for a request body. Progress is
// called after every chunk written to the transport with the cumulative
// byte count and the total body size; sent equals total once the body has
// been fully consumed.
type ProgressSink interface {
	Progress(sent, total int64)
}

// ProgressFunc adapts a plain function to the ProgressSink interface.
type ProgressFunc func(sent, total int64)

// Progress implements ProgressSink.
func (f ProgressFunc) Progress(sent, total int64) {
	f(sent, total)
}

// progressReader wraps a request body reader and reports cumulative bytes
// read to the sink. Reads are sequential, so no locking is needed.
type progressReader struct {
	r     io.Reader
	sink  ProgressSink
	total int64
	sent  int64
}

func newProgressReader(r io.Reader, total int64, sink ProgressSink) *progressReader {
	return &progressReader{r: r, sink: sink, total: total}
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.r.Read(p)
	if n > 0 {
		pr.sent += int64(n)
		pr.sink.Progress(pr.sent, pr.total)
	}
	return n, err
}
