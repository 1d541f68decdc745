// Package main is the entry point for the geoharvest binary.
package main

import "github.com/oceansat/geoharvest/cmd"

func main() {
	cmd.Execute()
}
