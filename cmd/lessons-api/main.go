package main

import (
	"fmt"
	"os"
)

// @title Lessons API
// @version 1.0.0
// @description Lesson scheduling with status transitions and asynchronous notifications
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
