package main

import (
	_ "github.com/joho/godotenv/autoload"

	api "github.com/azzapp/billing-api/pkg/api"
)

func main() {
	a := api.NewApp()
	a.RunForever()
}
