package main

import "github.com/goplus/cargo-pgo/cmd/cargo-pgo/internal"

func main() {
	internal.Execute()
}
