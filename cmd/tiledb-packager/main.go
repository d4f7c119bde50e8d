package main

import "github.com/oshokin/tiledb-fetch/cmd/tiledb-packager/cmd"

func main() {
	cmd.Execute()
}
