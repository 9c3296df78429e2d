// Package main is the entry point of the docmender service. Docmender
// validates structured documents against a JSON Schema and repairs the
// invalid ones through a queue-backed generative correction pipeline.
package main

import "docmender/cmd"

func main() {
	cmd.Execute()
}
