// Copyright © 2024 Vortex Studio.

package main

import "github.com/joho/godotenv"

func main() {
	_ = godotenv.Load()
	Execute()
}
