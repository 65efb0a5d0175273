// The main package for the popetl executable.
package main

import (
	"github.com/JakeFAU/world-population-etl/cmd"
)

func main() {
	cmd.Execute()
}
