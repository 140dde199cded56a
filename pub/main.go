package main

import (
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/Badsworth/pfml-scripts-sub004/pub/pubcli"
)

func main() {
	if err := pubcli.GetApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
