package main

import (
	"fmt"
	"log"
	"strings"

	"github.com/fulldump/goconfig"
)

type Config struct {
	Test      string `usage:"name of the test: ALL | SAVE | REPLACE"`
	Base      string `usage:"base URL, empty starts an in-process server"`
	Token     string `usage:"authorization token"`
	N         int64  `usage:"number of saves"`
	Workers   int    `usage:"number of workers"`
	Documents int    `usage:"number of documents for SAVE"`
}

var cleanups []func()

func main() {

	defer func() {
		fmt.Println("Cleaning up...")
		for _, cleanup := range cleanups {
			cleanup()
		}
	}()

	c := Config{
		Test:      "save",
		Base:      "",
		N:         10_000,
		Workers:   16,
		Documents: 8,
	}
	goconfig.Read(&c)

	switch strings.ToUpper(c.Test) {
	case "ALL":
		TestSave(c)
		TestReplace(c)
	case "SAVE":
		TestSave(c)
	case "REPLACE":
		TestReplace(c)
	default:
		log.Fatalf("Unknown test %s", c.Test)
	}

}
