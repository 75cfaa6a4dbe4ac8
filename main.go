package main

import "merit/cmd"

// version is injected at build time via -ldflags.
var version = "0.3.0"

func main() {
	cmd.SetVersion(version)
	cmd.Execute()
}
