package server

import (
	"bufio"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	// maxKeyLen is the protocol's hard key length limit.
	maxKeyLen = 250

	// maxValueBytes caps a single data block at 64MB.
	maxValueBytes = 64 << 20
)

// errProtocol marks a structurally malformed request line, answered with a
// bare ERROR response. The connection keeps going afterwards.
var errProtocol = errors.New("malformed request line")

type commandKind int

const (
	cmdGet commandKind = iota
	cmdGets
	cmdSet
	cmdAdd
	cmdReplace
	cmdAppend
	cmdPrepend
	cmdDelete
	cmdIncr
	cmdDecr
	cmdFlushAll
	cmdStats
	cmdVersion
	cmdQuit
)

// command is one parsed request line. Which fields are meaningful depends
// on kind: keys for retrievals, key/flags/exptime/nbytes for storage
// commands, key/delta for incr and decr.
type command struct {
	kind    commandKind
	keys    []string
	key     string
	flags   uint32
	exptime int64
	nbytes  int
	delta   uint64
	noreply bool
}

// isStorage reports whether the command is followed by a data block.
func (c command) isStorage() bool {
	switch c.kind {
	case cmdSet, cmdAdd, cmdReplace, cmdAppend, cmdPrepend:
		return true
	}
	return false
}

var storageVerbs = map[string]commandKind{
	"set":     cmdSet,
	"add":     cmdAdd,
	"replace": cmdReplace,
	"append":  cmdAppend,
	"prepend": cmdPrepend,
}

func parseCommand(line string) (command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return command{}, errProtocol
	}

	verb := strings.ToLower(fields[0])
	args := fields[1:]

	if kind, ok := storageVerbs[verb]; ok {
		return parseStorage(kind, args)
	}

	switch verb {
	case "get", "gets":
		if len(args) == 0 {
			return command{}, errProtocol
		}
		for _, key := range args {
			if !validKey(key) {
				return command{}, errProtocol
			}
		}
		kind := cmdGet
		if verb == "gets" {
			kind = cmdGets
		}
		return command{kind: kind, keys: args}, nil

	case "delete":
		cmd := command{kind: cmdDelete}
		args, cmd.noreply = trimNoreply(args)
		if len(args) != 1 || !validKey(args[0]) {
			return command{}, errProtocol
		}
		cmd.key = args[0]
		return cmd, nil

	case "incr", "decr":
		kind := cmdIncr
		if verb == "decr" {
			kind = cmdDecr
		}
		cmd := command{kind: kind}
		args, cmd.noreply = trimNoreply(args)
		if len(args) != 2 || !validKey(args[0]) {
			return command{}, errProtocol
		}
		delta, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return command{}, errProtocol
		}
		cmd.key = args[0]
		cmd.delta = delta
		return cmd, nil

	case "flush_all":
		cmd := command{kind: cmdFlushAll}
		args, cmd.noreply = trimNoreply(args)
		if len(args) != 0 {
			return command{}, errProtocol
		}
		return cmd, nil

	case "stats":
		if len(args) != 0 {
			return command{}, errProtocol
		}
		return command{kind: cmdStats}, nil

	case "version":
		if len(args) != 0 {
			return command{}, errProtocol
		}
		return command{kind: cmdVersion}, nil

	case "quit":
		return command{kind: cmdQuit}, nil
	}

	return command{}, errProtocol
}

// parseStorage handles `<verb> <key> <flags> <exptime> <bytes> [noreply]`.
func parseStorage(kind commandKind, args []string) (command, error) {
	cmd := command{kind: kind}
	args, cmd.noreply = trimNoreply(args)
	if len(args) != 4 {
		return command{}, errProtocol
	}
	if !validKey(args[0]) {
		return command{}, errProtocol
	}
	cmd.key = args[0]

	flags, err := strconv.ParseUint(args[1], 10, 32)
	if err != nil {
		return command{}, errProtocol
	}
	cmd.flags = uint32(flags)

	cmd.exptime, err = strconv.ParseInt(args[2], 10, 64)
	if err != nil {
		return command{}, errProtocol
	}

	nbytes, err := strconv.ParseInt(args[3], 10, 32)
	if err != nil || nbytes < 0 {
		return command{}, errProtocol
	}
	cmd.nbytes = int(nbytes)

	return cmd, nil
}

func trimNoreply(args []string) ([]string, bool) {
	if n := len(args); n > 0 && args[n-1] == "noreply" {
		return args[:n-1], true
	}
	return args, false
}

// validKey rejects empty, overlong, and control-character keys. Keys are
// opaque bytes otherwise; UTF-8 is fine.
func validKey(key string) bool {
	if len(key) == 0 || len(key) > maxKeyLen {
		return false
	}
	for i := 0; i < len(key); i++ {
		if key[i] <= ' ' || key[i] == 0x7f {
			return false
		}
	}
	return true
}

func writeError(w *bufio.Writer) error {
	_, err := w.WriteString("ERROR\r\n")
	return err
}

func writeClientError(w *bufio.Writer, msg string) error {
	_, err := fmt.Fprintf(w, "CLIENT_ERROR %s\r\n", msg)
	return err
}

func writeServerError(w *bufio.Writer, msg string) error {
	_, err := fmt.Fprintf(w, "SERVER_ERROR %s\r\n", msg)
	return err
}
