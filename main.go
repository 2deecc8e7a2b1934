package main

import "github.com/ngld/buildconf/cmd"

func main() {
	cmd.Execute()
}
