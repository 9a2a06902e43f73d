// ./main.go
package main

import (
	"github.com/xkilldash9x/flowcheck/cmd"
)

// main hands control to the command tree, which owns configuration,
// logging and the exit status.
func main() {
	cmd.Execute()
}
