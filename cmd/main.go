package main

import (
	"os"

	"github.com/soundprediction/kodabi-gateway/cmd/kodabi"
)

func main() {
	if err := kodabi.Execute(); err != nil {
		os.Exit(1)
	}
}
