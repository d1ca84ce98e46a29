package content

import (
	"errors"
	"fmt"
	"strconv"
)

// TokenType for content streams
type TokenType int

const (
	TokenOperator TokenType = iota
	TokenOperand
)

// Token is a content stream token. Operand values are float64, Name, []byte
// (strings), []interface{} (arrays), bool, Dict or nil.
type Token struct {
	Type  TokenType
	Value interface{}
}

// Name is a PDF name operand without its leading slash.
type Name string

// Dict is an inline dictionary operand. Only names and numbers are kept.
type Dict map[string]interface{}

var errEOF = errors.New("EOF")

// Lexer tokenizes PDF content streams
type Lexer struct {
	data []byte
	pos  int
}

// NewLexer creates a new content lexer
func NewLexer(data []byte) *Lexer {
	return &Lexer{data: data}
}

// Next returns the next token, or an error at the end of data.
func (l *Lexer) Next() (*Token, error) {
	l.skipWhitespaceAndComments()
	if l.pos >= len(l.data) {
		return nil, errEOF
	}

	ch := l.data[l.pos]
	switch {
	case ch == '(':
		return l.readString()
	case ch == '<':
		if l.peek(1) == '<' {
			d, err := l.readDict()
			if err != nil {
				return nil, err
			}
			return &Token{Type: TokenOperand, Value: d}, nil
		}
		return l.readHexString()
	case ch == '[':
		return l.readArray()
	case ch == '/':
		return l.readName(), nil
	case isNumberStart(ch):
		return l.readNumber(), nil
	case ch == ']' || ch == '>' || ch == ')' || ch == '{' || ch == '}':
		l.pos++
		return l.Next()
	default:
		tok := l.readOperator()
		switch tok.Value.(string) {
		case "true":
			return &Token{Type: TokenOperand, Value: true}, nil
		case "false":
			return &Token{Type: TokenOperand, Value: false}, nil
		case "null":
			return &Token{Type: TokenOperand, Value: nil}, nil
		case "ID":
			l.skipInlineImage()
		}
		return tok, nil
	}
}

func (l *Lexer) peek(offset int) byte {
	if l.pos+offset < len(l.data) {
		return l.data[l.pos+offset]
	}
	return 0
}

func isWhitespace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\r' || ch == '\n' || ch == '\f' || ch == 0
}

func isDelimiter(ch byte) bool {
	switch ch {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func isNumberStart(ch byte) bool {
	return ch == '+' || ch == '-' || ch == '.' || (ch >= '0' && ch <= '9')
}

func (l *Lexer) skipWhitespaceAndComments() {
	for l.pos < len(l.data) {
		ch := l.data[l.pos]
		if isWhitespace(ch) {
			l.pos++
			continue
		}
		if ch == '%' {
			for l.pos < len(l.data) && l.data[l.pos] != '\n' && l.data[l.pos] != '\r' {
				l.pos++
			}
			continue
		}
		break
	}
}

// skipInlineImage moves past inline image data up to and including EI.
func (l *Lexer) skipInlineImage() {
	if l.pos < len(l.data) && isWhitespace(l.data[l.pos]) {
		l.pos++
	}
	for i := l.pos; i+1 < len(l.data); i++ {
		if l.data[i] == 'E' && l.data[i+1] == 'I' &&
			(i == 0 || isWhitespace(l.data[i-1])) &&
			(i+2 >= len(l.data) || isWhitespace(l.data[i+2]) || isDelimiter(l.data[i+2])) {
			l.pos = i + 2
			return
		}
	}
	l.pos = len(l.data)
}

// readString reads a string literal
func (l *Lexer) readString() (*Token, error) {
	l.pos++ // Skip (
	start := l.pos
	depth := 1
	escaped := false

	for l.pos < len(l.data) && depth > 0 {
		ch := l.data[l.pos]
		if escaped {
			escaped = false
		} else {
			switch ch {
			case '\\':
				escaped = true
			case '(':
				depth++
			case ')':
				depth--
			}
		}
		l.pos++
	}
	if depth > 0 {
		return nil, fmt.Errorf("unterminated string")
	}
	return &Token{Type: TokenOperand, Value: unescape(l.data[start : l.pos-1])}, nil
}

// readHexString reads a hexadecimal string
func (l *Lexer) readHexString() (*Token, error) {
	l.pos++ // Skip <
	start := l.pos
	for l.pos < len(l.data) && l.data[l.pos] != '>' {
		l.pos++
	}
	if l.pos >= len(l.data) {
		return nil, fmt.Errorf("unterminated hex string")
	}
	hex := l.data[start:l.pos]
	l.pos++ // Skip >

	digits := make([]byte, 0, len(hex)+1)
	for _, b := range hex {
		if (b >= '0' && b <= '9') || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F') {
			digits = append(digits, b)
		}
	}
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	out := make([]byte, 0, len(digits)/2)
	for i := 0; i < len(digits); i += 2 {
		v, _ := strconv.ParseUint(string(digits[i:i+2]), 16, 8)
		out = append(out, byte(v))
	}
	return &Token{Type: TokenOperand, Value: out}, nil
}

// readArray reads an array operand; nested arrays are supported.
func (l *Lexer) readArray() (*Token, error) {
	l.pos++ // Skip [
	array := []interface{}{}
	for {
		l.skipWhitespaceAndComments()
		if l.pos >= len(l.data) {
			return nil, fmt.Errorf("unterminated array")
		}
		if l.data[l.pos] == ']' {
			l.pos++
			return &Token{Type: TokenOperand, Value: array}, nil
		}
		tok, err := l.Next()
		if err != nil {
			return nil, err
		}
		array = append(array, tok.Value)
	}
}

// readDict reads an inline dictionary such as a marked-content property list.
func (l *Lexer) readDict() (Dict, error) {
	l.pos += 2 // Skip <<
	d := Dict{}
	var key string
	haveKey := false
	for {
		l.skipWhitespaceAndComments()
		if l.pos >= len(l.data) {
			return nil, fmt.Errorf("unterminated dictionary")
		}
		if l.data[l.pos] == '>' && l.peek(1) == '>' {
			l.pos += 2
			return d, nil
		}
		tok, err := l.Next()
		if err != nil {
			return nil, err
		}
		if !haveKey {
			if n, ok := tok.Value.(Name); ok {
				key, haveKey = string(n), true
			}
			continue
		}
		d[key] = tok.Value
		haveKey = false
	}
}

// readName reads a name object
func (l *Lexer) readName() *Token {
	l.pos++ // Skip /
	start := l.pos
	for l.pos < len(l.data) && !isWhitespace(l.data[l.pos]) && !isDelimiter(l.data[l.pos]) {
		l.pos++
	}
	return &Token{Type: TokenOperand, Value: Name(decodeNameEscapes(l.data[start:l.pos]))}
}

func decodeNameEscapes(raw []byte) string {
	out := make([]byte, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		if raw[i] == '#' && i+2 < len(raw) {
			if v, err := strconv.ParseUint(string(raw[i+1:i+3]), 16, 8); err == nil {
				out = append(out, byte(v))
				i += 2
				continue
			}
		}
		out = append(out, raw[i])
	}
	return string(out)
}

// readNumber reads a numeric value
func (l *Lexer) readNumber() *Token {
	start := l.pos
	l.pos++
	for l.pos < len(l.data) {
		ch := l.data[l.pos]
		if (ch >= '0' && ch <= '9') || ch == '.' {
			l.pos++
			continue
		}
		break
	}
	v, err := strconv.ParseFloat(string(l.data[start:l.pos]), 64)
	if err != nil {
		v = 0
	}
	return &Token{Type: TokenOperand, Value: v}
}

// readOperator reads an operator
func (l *Lexer) readOperator() *Token {
	start := l.pos
	for l.pos < len(l.data) && !isWhitespace(l.data[l.pos]) && !isDelimiter(l.data[l.pos]) {
		l.pos++
	}
	if l.pos == start {
		l.pos++
	}
	return &Token{Type: TokenOperator, Value: string(l.data[start:l.pos])}
}

// unescape processes escape sequences in a string literal
func unescape(text []byte) []byte {
	result := make([]byte, 0, len(text))
	for i := 0; i < len(text); i++ {
		if text[i] != '\\' {
			if text[i] == '\r' {
				result = append(result, '\n')
				if i+1 < len(text) && text[i+1] == '\n' {
					i++
				}
				continue
			}
			result = append(result, text[i])
			continue
		}
		i++
		if i >= len(text) {
			break
		}
		switch c := text[i]; c {
		case 'n':
			result = append(result, '\n')
		case 'r':
			result = append(result, '\r')
		case 't':
			result = append(result, '\t')
		case 'b':
			result = append(result, '\b')
		case 'f':
			result = append(result, '\f')
		case '\r':
			if i+1 < len(text) && text[i+1] == '\n' {
				i++
			}
		case '\n':
			// line continuation
		default:
			if c >= '0' && c <= '7' {
				end := i + 1
				for end < len(text) && end < i+3 && text[end] >= '0' && text[end] <= '7' {
					end++
				}
				v, _ := strconv.ParseUint(string(text[i:end]), 8, 16)
				result = append(result, byte(v))
				i = end - 1
			} else {
				result = append(result, c)
			}
		}
	}
	return result
}
