package main

import (
	"backup-service/internal"
	"os"
)

func main() {
	factory := func(envFile string) (backupApp, error) {
		if envFile == "" {
			return internal.NewApp()
		}
		return internal.NewApp(envFile)
	}
	os.Exit(execute(newRootCmd(factory, os.Stdout, os.Stderr)))
}
