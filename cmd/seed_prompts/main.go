package main

import (
	"log"
	"os"

	"mediquery-be/pkg/prompt"

	"github.com/joho/godotenv"
)

func main() {
	// 1. Load Environment Variables
	if err := godotenv.Load(); err != nil {
		log.Println("Info: No .env file found, using system env")
	}

	path := os.Getenv("PROMPT_STORE_PATH")
	if path == "" {
		path = "prompts.yaml"
	}

	// 2. Write the shipped template set (overwrites an existing store)
	if err := prompt.WriteDefaultStore(path); err != nil {
		log.Fatalf("Error: Failed to write prompt store: %v", err)
	}

	log.Printf("✅ Success: Default prompt templates written to %s", path)
}
