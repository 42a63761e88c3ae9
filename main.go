package main

import "cardex-server/cmd"

func main() {
	cmd.Execute()
}
