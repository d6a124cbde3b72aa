// Package main is the entry point for the sumhouse application
package main

import (
	"github.com/sumhouse/sumhouse/cmd"
)

func main() {
	cmd.Execute()
}
