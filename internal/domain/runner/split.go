package runner

import "bytes"

// MaxLineSize is the longest line a run will surface.
const MaxLineSize = 1 << 20

// lineSplitter is a bufio.SplitFunc source that treats "\n", "\r" and "\r\n"
// as terminators, so carriage-return progress bars yield one line per redraw.
type lineSplitter struct {
	afterCR bool
}

func (s *lineSplitter) split(data []byte, atEOF bool) (int, []byte, error) {
	if len(data) == 0 {
		return 0, nil, nil
	}

	// "\r\n" split across two reads
	if s.afterCR {
		s.afterCR = false
		if data[0] == '\n' {
			return 1, nil, nil
		}
	}

	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\r' {
			if i+1 < len(data) {
				if data[i+1] == '\n' {
					return i + 2, data[:i], nil
				}
			} else {
				s.afterCR = true
			}
		}
		return i + 1, data[:i], nil
	}

	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
