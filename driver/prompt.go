// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package driver

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Prompter asks the operator a question and returns the answer.
type Prompter interface {
	Prompt(ctx context.Context, question string) (string, error)
}

type answer struct {
	line string
	err  error
}

// LinePrompter writes a question to out and reads one line from in.
type LinePrompter struct {
	in  *bufio.Reader
	out io.Writer
	// pending holds a read abandoned by a cancelled Prompt; the next Prompt
	// takes its line instead of starting a second reader.
	pending chan answer
}

var _ Prompter = (*LinePrompter)(nil)

// NewLinePrompter creates a prompter over a terminal or any line-oriented reader.
func NewLinePrompter(in io.Reader, out io.Writer) *LinePrompter {
	return &LinePrompter{in: bufio.NewReader(in), out: out}
}

// Prompt returns the next line with trailing whitespace removed. It returns
// ctx.Err() as soon as ctx is done, even while the read is still blocked.
func (p *LinePrompter) Prompt(ctx context.Context, question string) (string, error) {
	if _, err := io.WriteString(p.out, question); err != nil {
		return "", err
	}

	if p.pending == nil {
		ch := make(chan answer, 1)
		go func() {
			line, err := p.in.ReadString('\n')
			ch <- answer{line: line, err: err}
		}()
		p.pending = ch
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case a := <-p.pending:
		p.pending = nil
		if a.err != nil && !(errors.Is(a.err, io.EOF) && a.line != "") {
			return "", fmt.Errorf("failed to read answer: %w", a.err)
		}
		return strings.TrimRight(a.line, " \t\r\n"), nil
	}
}
