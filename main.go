package main

import (
	"fmt"

	"github.com/CastPay/CastPay-Backend/api"
	"github.com/CastPay/CastPay-Backend/utils"
)

var envPath string = "."

func main() {

	config, err := utils.LoadConfig(envPath)
	if err != nil {
		panic(fmt.Sprintf("Could not load config: %v", err))
	}

	server := api.NewServer(config)
	server.Start()
}
