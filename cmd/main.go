package main

import (
	"log"

	"github.com/victornm/quizgrade/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		log.Fatalf("quizgrade: %v", err)
	}
}
