// Package main provides the entry point for clipgrab.
package main

import "github.com/maauso/clipgrab/cmd"

func main() {
	cmd.Execute()
}
