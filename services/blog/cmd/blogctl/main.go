// Command blogctl is the operator tool for the blog service: schema setup,
// comment graph repair, profile upserts and token minting.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(openPostgres).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
