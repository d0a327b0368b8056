package main

import "github.com/svt-term/svt/cmd/svt/cmd"

func main() {
	cmd.Execute()
}
