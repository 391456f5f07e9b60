package executor

import "strings"

// SplitStatements joins fragments with a single space and splits the result
// back into semicolon-terminated statements. Semicolons inside quoted
// literals or "--" comments do not split. Segments that hold nothing but
// whitespace or comments are dropped; a comment that precedes a statement
// stays attached to it.
//
// Every delimiter is ASCII, so the text is scanned byte by byte and each
// statement is a slice of the input. Bytes that are not valid UTF-8 pass
// through unchanged.
func SplitStatements(fragments []string) []string {
	joined := strings.Join(fragments, " ")

	var (
		stmts   []string
		start   int  // offset of the current segment
		quote   byte // active quote character, 0 outside literals
		comment bool // inside a "--" comment, until end of line
		hasCode bool // current segment has something besides comments
	)

	flush := func(end int) {
		seg := strings.TrimSpace(joined[start:end])
		if seg != "" && hasCode {
			stmts = append(stmts, seg+";")
		}
		start = end + 1
		hasCode = false
	}

	for i := 0; i < len(joined); i++ {
		c := joined[i]
		switch {
		case comment:
			if c == '\n' {
				comment = false
			}
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"' || c == '`':
			quote = c
			hasCode = true
		case c == '-' && i+1 < len(joined) && joined[i+1] == '-':
			comment = true
		case c == ';':
			flush(i)
		case c != ' ' && c != '\t' && c != '\n' && c != '\r':
			hasCode = true
		}
	}
	if start < len(joined) {
		flush(len(joined))
	}
	return stmts
}
