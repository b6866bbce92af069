// Command wsecho serves the echo application over raw WebSocket connections.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

func main() {
	cmd := newEchoCommand()
	if err := cmd.Execute(); err != nil {
		logrus.Error(err)
		os.Exit(1)
	}
}

func usageErr(format string, v ...interface{}) error {
	return fmt.Errorf("wsecho: "+format, v...)
}
