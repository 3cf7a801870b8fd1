package main

import "orchestrall-backup/cmd"

// Version information set by build flags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.buildTime=... -X main.gitCommit=..."
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, buildTime, gitCommit)
	cmd.Execute()
}
