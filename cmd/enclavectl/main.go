// Package main implements the enclavectl CLI tool.
// It provisions and tears down the confidential workload demo environment.
package main

import "github.com/enclaveops/enclavectl/cmd/enclavectl/cmd"

func main() {
	cmd.Execute()
}
