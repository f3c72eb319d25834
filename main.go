package main

import "github.com/pders01/snapsafe/cmd"

func main() {
	cmd.Execute()
}
