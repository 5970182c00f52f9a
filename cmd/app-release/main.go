package main

import "github.com/oshokin/app-release/cmd/app-release/cmd"

func main() {
	cmd.Execute()
}
