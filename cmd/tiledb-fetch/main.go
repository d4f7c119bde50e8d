package main

import "github.com/oshokin/tiledb-fetch/cmd/tiledb-fetch/cmd"

func main() {
	cmd.Execute()
}
