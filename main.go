/*
Copyright 2025 Markus Papenbrock
*/
package main

import "github.com/mpapenbr/sequential/cmd"

func main() {
	cmd.Execute()
}
