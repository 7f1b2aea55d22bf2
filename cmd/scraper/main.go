// Package main is the scraper executable.
package main

import "github.com/JakeFAU/concurrent-scraper/internal/cli"

func main() {
	cli.Execute()
}
