package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fulldump/goconfig"

	"github.com/fulldump/annotationstore/bootstrap"
	"github.com/fulldump/annotationstore/configuration"
)

var banner = `
    _                      _        _   _             
   / \   _ __  _ __   ___ | |_ __ _| |_(_) ___  _ __  
  / _ \ | '_ \| '_ \ / _ \| __/ _' | __| |/ _ \| '_ \ 
 / ___ \| | | | | | | (_) | || (_| | |_| | (_) | | | |
/_/   \_\_| |_|_| |_|\___/ \__\__,_|\__|_|\___/|_| |_|
                                      store version ` + bootstrap.VERSION + `
`

func main() {

	c := configuration.Default()
	goconfig.Read(&c)

	if c.Version {
		fmt.Println("Version:", bootstrap.VERSION)
		return
	}

	if c.ShowBanner {
		fmt.Println(banner)
	}

	if c.ShowConfig {
		e := json.NewEncoder(os.Stdout)
		e.SetIndent("", "    ")
		e.Encode(c)
	}

	start, _ := bootstrap.Bootstrap(&c)
	start()
}
