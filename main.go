// The main package for the toprgb executable.
package main

import (
	"github.com/JakeFAU/toprgb/cmd"
)

func main() {
	cmd.Execute()
}
