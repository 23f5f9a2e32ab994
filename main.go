// The main package for the bidharvest executable.
package main

import "github.com/JakeFAU/bidharvest/cmd"

func main() {
	cmd.Execute()
}
