// Package cargo rewrites and runs cargo invocations for the optimization workflows.
package cargo

import "fmt"

// Command selects the cargo subcommand to invoke.
type Command int

const (
	Build Command = iota
	Test
	Run

	numCommands
)

// commandNames is indexed by Command. Its length is pinned to numCommands so a
// new constant without a name is caught by TestCommandNamesComplete.
var commandNames = [numCommands]string{
	Build: "build",
	Test:  "test",
	Run:   "run",
}

// String returns the cargo subcommand name.
func (c Command) String() string {
	if !c.Valid() {
		panic(fmt.Sprintf("cargo: invalid command %d", int(c)))
	}
	return commandNames[c]
}

// Valid reports whether c is one of the declared commands.
func (c Command) Valid() bool {
	return c >= 0 && c < numCommands
}

// ParseCommand maps a subcommand name back to its Command.
func ParseCommand(name string) (Command, error) {
	for c, n := range commandNames {
		if n == name {
			return Command(c), nil
		}
	}
	return 0, fmt.Errorf("unknown cargo command %q (expected build, test or run)", name)
}

// Commands returns every Command in declaration order.
func Commands() []Command {
	cmds := make([]Command, 0, numCommands)
	for c := Command(0); c < numCommands; c++ {
		cmds = append(cmds, c)
	}
	return cmds
}
