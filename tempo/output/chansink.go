package output

// ChanSink hands copies of each block to a consumer goroutine. Write blocks
// while the channel is full, which in turn blocks the Buffer producing into
// it.
type ChanSink struct {
	ch     chan []Frame
	closed bool
}

// NewChanSink creates a sink whose channel holds up to depth blocks.
func NewChanSink(depth int) *ChanSink {
	if depth < 0 {
		depth = 0
	}
	return &ChanSink{ch: make(chan []Frame, depth)}
}

func (s *ChanSink) Write(frames []Frame) error {
	if s.closed {
		return ErrSinkClosed
	}
	block := make([]Frame, len(frames))
	copy(block, frames)
	s.ch <- block
	return nil
}

// Blocks is the receive side for the consumer.
func (s *ChanSink) Blocks() <-chan []Frame {
	return s.ch
}

// Close closes the channel once the consumer has drained it. It must be
// called from the producing goroutine.
func (s *ChanSink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.ch)
	return nil
}
