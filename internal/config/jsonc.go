package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// normalizeJSONC blanks comments and trailing commas so the result decodes as
// strict JSON. Byte offsets in the result match content, so decoder error
// positions point at the original file.
func normalizeJSONC(content string) (string, error) {
	out := []byte(content)
	pendingComma := -1

	for i := 0; i < len(out); i++ {
		ch := out[i]
		switch {
		case ch == '"':
			i = closingQuote(out, i)
			pendingComma = -1
		case ch == '/' && i+1 < len(out) && out[i+1] == '/':
			end := i
			for end < len(out) && out[end] != '\n' && out[end] != '\r' {
				end++
			}
			blank(out[i:end])
			i = end - 1
		case ch == '/' && i+1 < len(out) && out[i+1] == '*':
			closeAt := bytes.Index(out[i+2:], []byte("*/"))
			if closeAt < 0 {
				return "", errors.New("unterminated block comment in JSONC")
			}
			end := i + 2 + closeAt + 2
			blank(out[i:end])
			i = end - 1
		case ch == ',':
			pendingComma = i
		case ch == '}' || ch == ']':
			if pendingComma >= 0 {
				out[pendingComma] = ' '
			}
			pendingComma = -1
		case isJSONWhitespace(ch):
		default:
			pendingComma = -1
		}
	}

	return string(out), nil
}

// closingQuote returns the index of the quote ending the string opened at start.
// An unterminated string runs to the end and is left for the decoder to reject.
func closingQuote(b []byte, start int) int {
	for i := start + 1; i < len(b); i++ {
		switch b[i] {
		case '\\':
			i++
		case '"':
			return i
		}
	}
	return len(b) - 1
}

// blank overwrites b with spaces, keeping line breaks and tabs.
func blank(b []byte) {
	for i, ch := range b {
		if ch != '\n' && ch != '\r' && ch != '\t' {
			b[i] = ' '
		}
	}
}

func isJSONWhitespace(ch byte) bool {
	return ch == ' ' || ch == '\n' || ch == '\r' || ch == '\t'
}

// ensureSingleJSONValue fails when anything but whitespace follows the document.
func ensureSingleJSONValue(decoder *json.Decoder) error {
	_, err := decoder.Token()
	switch {
	case errors.Is(err, io.EOF):
		return nil
	case err != nil:
		return err
	default:
		return errors.New("multiple JSON values are not allowed")
	}
}

// wrapJSONDecodeError prefixes err with the line and column it refers to.
func wrapJSONDecodeError(content string, err error) error {
	var offset int64
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxErr):
		offset = syntaxErr.Offset
	case errors.As(err, &typeErr):
		offset = typeErr.Offset
	default:
		offset = unknownFieldOffset(content, err)
	}
	if offset <= 0 {
		return err
	}

	line, col := offsetToLineCol(content, offset)
	return fmt.Errorf("line %d column %d: %w", line, col, err)
}

// unknownFieldOffset locates the first occurrence of the key named by a
// DisallowUnknownFields error, which carries no offset of its own.
func unknownFieldOffset(content string, err error) int64 {
	const marker = "unknown field "
	msg := err.Error()
	at := strings.Index(msg, marker)
	if at < 0 {
		return 0
	}
	key := msg[at+len(marker):]
	idx := strings.Index(content, key+":")
	if idx < 0 {
		idx = strings.Index(content, key)
	}
	if idx < 0 {
		return 0
	}
	return int64(idx) + 1
}

func offsetToLineCol(content string, offset int64) (int, int) {
	limit := int(min(offset, int64(len(content)))) - 1
	if limit <= 0 {
		return 1, 1
	}
	prefix := content[:limit]
	line := strings.Count(prefix, "\n") + 1
	col := limit - strings.LastIndexByte(prefix, '\n')
	return line, col
}
