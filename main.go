package main

import "github.com/killallgit/chatnote/cmd"

func main() {
	cmd.Execute()
}
