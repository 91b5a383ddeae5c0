package main

import (
	"github.com/jeageon/RBS-cal/cmd"
)

func main() {
	cmd.Execute() // initialize cobra commands
}
