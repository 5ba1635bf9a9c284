package util

import (
	"os"
	"path/filepath"
)

func GetProjectRoot() string {
	if os.Getenv("GO_ENV") == "prod" {
		return "./"
	}

	// "go test" changes the working dir to the package dir, restore the
	// repo root so the migrations dir resolves
	gopath := os.Getenv("GOPATH")
	return filepath.Join(gopath, "src", "github.com", "azzapp", "billing-api")
}
