package server

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/tsurube/tsurube/internal/store"
)

func (s *Server) handleConn(conn net.Conn) {
	defer func() {
		s.stats.CurrConnections.Add(-1)
		conn.Close()
	}()
	s.stats.TotalConnections.Add(1)
	s.stats.CurrConnections.Add(1)

	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)

	for {
		line, err := readCommandLine(r)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.logf("read error: %v", err)
			}
			return
		}

		req, err := parseCommand(line)
		if err != nil {
			// A malformed line degrades only this request; noreply can
			// never suppress it because it was never parsed.
			if err := writeError(w); err != nil {
				return
			}
			if err := w.Flush(); err != nil {
				return
			}
			continue
		}
		if req.kind == cmdQuit {
			return
		}

		switch {
		case req.isStorage():
			err = s.handleStorage(r, w, req)
		case req.kind == cmdGet:
			err = s.handleGet(w, req.keys, false)
		case req.kind == cmdGets:
			err = s.handleGet(w, req.keys, true)
		case req.kind == cmdDelete:
			err = s.handleDelete(w, req)
		case req.kind == cmdIncr:
			err = s.handleIncrDecr(w, req, true)
		case req.kind == cmdDecr:
			err = s.handleIncrDecr(w, req, false)
		case req.kind == cmdFlushAll:
			err = s.handleFlushAll(w, req)
		case req.kind == cmdStats:
			err = s.handleStats(w)
		case req.kind == cmdVersion:
			_, err = fmt.Fprintf(w, "VERSION %s\r\n", s.version)
		}
		if err != nil {
			return
		}
		if err := w.Flush(); err != nil {
			return
		}
	}
}

func (s *Server) handleGet(w *bufio.Writer, keys []string, withCAS bool) error {
	s.stats.CmdGet.Add(1)

	for _, key := range keys {
		entry, ok := s.store.Get(key)
		if !ok {
			s.stats.GetMisses.Add(1)
			continue
		}
		s.stats.GetHits.Add(1)

		if withCAS {
			if _, err := fmt.Fprintf(w, "VALUE %s %d %d %d\r\n", key, entry.Flags, len(entry.Value), entry.CAS); err != nil {
				return err
			}
		} else {
			if _, err := fmt.Fprintf(w, "VALUE %s %d %d\r\n", key, entry.Flags, len(entry.Value)); err != nil {
				return err
			}
		}
		if _, err := w.Write(entry.Value); err != nil {
			return err
		}
		if _, err := w.WriteString("\r\n"); err != nil {
			return err
		}
	}
	_, err := w.WriteString("END\r\n")
	return err
}

// handleStorage reads the data block that follows a storage command line
// and dispatches to the store. The block is always consumed, even when the
// command is rejected, so the stream stays in sync.
func (s *Server) handleStorage(r *bufio.Reader, w *bufio.Writer, req command) error {
	if req.nbytes > maxValueBytes {
		if _, err := io.CopyN(io.Discard, r, int64(req.nbytes)); err != nil {
			return err
		}
		if err := consumeChunkTerminator(r); err != nil {
			return writeClientError(w, "bad data chunk")
		}
		return writeServerError(w, "object too large for cache")
	}

	value := make([]byte, req.nbytes)
	if _, err := io.ReadFull(r, value); err != nil {
		return writeClientError(w, "bad data chunk")
	}
	if err := consumeChunkTerminator(r); err != nil {
		return writeClientError(w, "bad data chunk")
	}

	s.stats.CmdSet.Add(1)

	var stored bool
	switch req.kind {
	case cmdSet:
		s.store.Set(req.key, req.flags, req.exptime, value)
		stored = true
	case cmdAdd:
		stored = s.store.Add(req.key, req.flags, req.exptime, value)
	case cmdReplace:
		stored = s.store.Replace(req.key, req.flags, req.exptime, value)
	case cmdAppend:
		stored = s.store.Append(req.key, value)
	case cmdPrepend:
		stored = s.store.Prepend(req.key, value)
	}

	if req.noreply {
		return nil
	}
	if stored {
		_, err := w.WriteString("STORED\r\n")
		return err
	}
	_, err := w.WriteString("NOT_STORED\r\n")
	return err
}

func (s *Server) handleDelete(w *bufio.Writer, req command) error {
	s.stats.CmdDelete.Add(1)

	deleted := s.store.Delete(req.key)
	if deleted {
		s.stats.DeleteHits.Add(1)
	} else {
		s.stats.DeleteMisses.Add(1)
	}

	if req.noreply {
		return nil
	}
	if deleted {
		_, err := w.WriteString("DELETED\r\n")
		return err
	}
	_, err := w.WriteString("NOT_FOUND\r\n")
	return err
}

func (s *Server) handleIncrDecr(w *bufio.Writer, req command, incr bool) error {
	var value uint64
	var err error
	if incr {
		value, err = s.store.Incr(req.key, req.delta)
	} else {
		value, err = s.store.Decr(req.key, req.delta)
	}
	if err != nil {
		if errors.Is(err, store.ErrNonNumeric) || errors.Is(err, store.ErrOverflow) {
			return writeClientError(w, err.Error())
		}
		return writeServerError(w, "internal error")
	}

	if req.noreply {
		return nil
	}
	_, err = fmt.Fprintf(w, "%d\r\n", value)
	return err
}

func (s *Server) handleFlushAll(w *bufio.Writer, req command) error {
	s.stats.CmdFlush.Add(1)
	s.store.FlushAll()

	if req.noreply {
		return nil
	}
	_, err := w.WriteString("OK\r\n")
	return err
}

func (s *Server) handleStats(w *bufio.Writer) error {
	for _, st := range s.stats.Snapshot() {
		if _, err := fmt.Fprintf(w, "STAT %s %d\r\n", st.Name, st.Value); err != nil {
			return err
		}
	}
	_, err := w.WriteString("END\r\n")
	return err
}

// readCommandLine accepts CRLF, LF, CR and CR NUL (common telnet newline).
func readCommandLine(r *bufio.Reader) (string, error) {
	var buf bytes.Buffer

	for {
		b, err := r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) && buf.Len() > 0 {
				return buf.String(), nil
			}
			return "", err
		}

		switch b {
		case '\n':
			return buf.String(), nil
		case '\r':
			next, err := r.ReadByte()
			if err == nil {
				if next != '\n' && next != 0x00 {
					if unreadErr := r.UnreadByte(); unreadErr != nil {
						return "", unreadErr
					}
				}
			} else if !errors.Is(err, io.EOF) {
				return "", err
			}
			return buf.String(), nil
		default:
			buf.WriteByte(b)
		}
	}
}

// consumeChunkTerminator accepts CRLF, LF, CR and CR NUL after a data block.
func consumeChunkTerminator(r *bufio.Reader) error {
	b, err := r.ReadByte()
	if err != nil {
		return err
	}
	switch b {
	case '\n':
		return nil
	case '\r':
		next, err := r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if next == '\n' || next == 0x00 {
			return nil
		}
		return fmt.Errorf("invalid chunk terminator")
	default:
		return fmt.Errorf("invalid chunk terminator")
	}
}
