package main

import "github.com/foliodb/foliodb/cmd"

func main() {
	cmd.Execute()
}
