package main

import "github.com/oshokin/oneclick/cmd/oneclick/cmd"

func main() {
	cmd.Execute()
}
