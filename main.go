package main

import (
	"fmt"
	"os"

	"github.com/webitel/im-presence-service/cmd"
)

func main() {
	if err := cmd.Run(); err != nil {
		fmt.Println(err.Error())
		os.Exit(1)
	}
}
