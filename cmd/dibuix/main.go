package main

import "github.com/dibuix-tech/dibuix/cmd/dibuix/cmd"

func main() {
	cmd.Execute()
}
