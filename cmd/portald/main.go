// Command portald serves the campus portal and administers its accounts.
//
//	portald serve --dev
//	portald signup --email t1@campus.edu --name "Tess" --role teacher
//	portald loadtest --accounts 200 --ops 20000
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
