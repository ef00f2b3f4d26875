package cli

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/ije/gox/term"

	"react-client.dev/server"
)

// Run parses the command line into dev server options and serves until
// shutdown. It returns the process exit code: 0 on clean shutdown and on a
// declined alternate-port prompt, 1 on startup errors.
func Run() int {
	port := flag.Uint("port", server.DefaultPort, "port to serve on")
	open := flag.Bool("open", true, "open the browser on start")
	flag.Parse()

	root := flag.Arg(0)
	if root == "" {
		root = "."
	}

	options := server.Options{
		Root: root,
		Server: server.ServerOptions{
			Port: uint16(*port),
			Open: *open,
		},
	}

	for {
		err := server.Serve(options)
		if err == nil {
			return 0
		}
		if errors.Is(err, server.ErrPortInUse) {
			next := options.Server.Port + 1
			if !termConfirm(fmt.Sprintf("Port %d is in use, try %d instead?", options.Server.Port, next)) {
				return 0
			}
			options.Server.Port = next
			continue
		}
		os.Stderr.WriteString(term.Red(err.Error()) + "\n")
		return 1
	}
}
