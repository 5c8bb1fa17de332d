// Command sheetload loads spreadsheet exports into PostgreSQL tables.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
