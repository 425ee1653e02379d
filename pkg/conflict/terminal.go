package conflict

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/devicelab-dev/flowdeploy/pkg/core"
)

// Terminal asks the user on a line-oriented terminal. Empty input, "c" and
// EOF cancel the conflict, as does cancelling the context while waiting.
type Terminal struct {
	In  io.Reader
	Out io.Writer

	once  sync.Once
	lines chan line
}

type line struct {
	text string
	err  error
}

// read starts the single goroutine that owns In. Lines are delivered one at
// a time so input typed after a cancelled prompt goes to the next one.
func (t *Terminal) read() {
	t.lines = make(chan line)
	go func() {
		r := bufio.NewReader(t.In)
		for {
			text, err := r.ReadString('\n')
			t.lines <- line{text: text, err: err}
			if err != nil {
				close(t.lines)
				return
			}
		}
	}()
}

// Choose prints the conflict and its options, then reads a choice.
func (t *Terminal) Choose(ctx context.Context, p Prompt) (Action, error) {
	t.once.Do(t.read)

	fmt.Fprintf(t.Out, "\n  Conflict deploying %s as %q\n", p.Config.Key(), p.Config.GeneratedName)
	fmt.Fprintf(t.Out, "  %s\n\n", p.Conflict.Message)
	for i, a := range p.Options {
		marker := ""
		if a.Destructive() {
			marker = " (destructive)"
		}
		fmt.Fprintf(t.Out, "    %d) %s%s: %s\n", i+1, a.Name(), marker, Describe(a, p.Conflict))
	}
	fmt.Fprintf(t.Out, "    c) cancel\n")

	for {
		if err := ctx.Err(); err != nil {
			return nil, core.ErrUserCancelled.WithCause(err)
		}
		fmt.Fprintf(t.Out, "  Choice: ")

		var in line
		select {
		case <-ctx.Done():
			fmt.Fprintln(t.Out)
			return nil, core.ErrUserCancelled.WithCause(ctx.Err())
		case l, ok := <-t.lines:
			if !ok {
				return nil, core.ErrUserCancelled.WithCause(io.EOF)
			}
			in = l
		}

		answer := strings.ToLower(strings.TrimSpace(in.text))
		if answer == "" && in.err != nil {
			return nil, core.ErrUserCancelled.WithCause(in.err)
		}

		switch answer {
		case "", "c", "cancel":
			return nil, core.ErrUserCancelled
		}
		if n, convErr := strconv.Atoi(answer); convErr == nil && n >= 1 && n <= len(p.Options) {
			return p.Options[n-1], nil
		}
		for _, a := range p.Options {
			if a.Name() == answer {
				return a, nil
			}
		}
		fmt.Fprintf(t.Out, "  Unknown choice %q\n", answer)
		if in.err != nil {
			return nil, core.ErrUserCancelled.WithCause(in.err)
		}
	}
}
