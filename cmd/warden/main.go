package main

import "github.com/warden-platform/warden-core/cmd/warden/cmd"

func main() {
	cmd.Execute()
}
