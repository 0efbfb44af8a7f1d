package main

import "github.com/oraclesec/sentinel/cmd"

func main() {
	cmd.Execute()
}
