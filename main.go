// Command job-portal-crawler crawls recruitment portals and serves the
// collected listings.
package main

import "github.com/Jadaunkg/job-portal-crawler/cmd"

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cmd.Execute(version)
}
