package main

import (
	"github.com/alex-s168/ubinutils/go/cmd"

	_ "github.com/alex-s168/ubinutils/go/cmd/ar"
	_ "github.com/alex-s168/ubinutils/go/cmd/dis"
	_ "github.com/alex-s168/ubinutils/go/cmd/nm"
	_ "github.com/alex-s168/ubinutils/go/cmd/objinfo"
	_ "github.com/alex-s168/ubinutils/go/cmd/size"
)

func main() { cmd.Main() }
