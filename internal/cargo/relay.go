package cargo

import (
	"fmt"
	"io"

	"github.com/qiniu/x/log"
)

// Relay prints cargo output records to the user.
type Relay struct {
	W io.Writer
}

// NewRelay returns a Relay writing to w.
func NewRelay(w io.Writer) *Relay {
	return &Relay{W: w}
}

// Handle renders a single record. Text lines are printed verbatim followed
// by a newline; compiler messages use their rendered form when available and
// are printed without an extra newline. Other records are ignored.
func (r *Relay) Handle(msg Message) {
	switch m := msg.(type) {
	case TextLine:
		log.Debug("TextLine", string(m))
		fmt.Fprintln(r.W, string(m))
	case CompilerMessage:
		log.Debug("CompilerMessage", m.Message)
		if m.Rendered != nil {
			fmt.Fprint(r.W, *m.Rendered)
		} else {
			fmt.Fprint(r.W, m.Message)
		}
	}
}
