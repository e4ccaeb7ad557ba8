// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package main

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/go-core-stack/library-client/pkg/cli"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	cli.Execute()
}
