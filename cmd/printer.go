// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package cmd

import (
	"fmt"
	"io"
	"os"
)

// Printer is where command output goes. Tests swap Out for a buffer.
var Printer = &printer{Out: os.Stdout}

type printer struct {
	Out io.Writer
}

func (p *printer) Printf(format string, args ...any) {
	fmt.Fprintf(p.Out, format, args...)
}

func (p *printer) Println(args ...any) {
	fmt.Fprintln(p.Out, args...)
}
