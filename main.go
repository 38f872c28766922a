package main

import (
	"log"
	"os"
	"os/exec"
	"path/filepath"
)

// Dev convenience: `go run .` at the repo root starts the server.
func main() {
	projectDir, err := os.Getwd()
	if err != nil {
		log.Fatalf("failed to determine working directory: %v", err)
	}

	serverPath := filepath.Join(projectDir, "cmd", "server")

	cmd := exec.Command("go", "run", ".")
	cmd.Dir = serverPath
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	log.Println("starting server from", serverPath)
	if err := cmd.Run(); err != nil {
		log.Fatalf("server exited with error: %v", err)
	}
}
