package main

import "github.com/sander-remitly/plate-calc/cmd"

func main() {
	cmd.Execute()
}
