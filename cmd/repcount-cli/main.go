package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"repcount/internal/exercise"
)

func main() {
	var (
		addrF    = flag.String("url", "http://localhost:5000", "URL of the repcount server for remote commands")
		timeoutF = flag.Int("timeout", 30, "Maximum number of seconds to wait for a server response")
		verboseF = flag.Bool("verbose", false, "Print request and response details")
	)
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		data any
		err  error
	)
	cmd, args := flag.Arg(0), flag.Args()[1:]
	switch cmd {
	case "process":
		data, err = runProcess(ctx, args)
	case "exercises":
		data = exercise.IDs()
	case "start", "stop", "count", "status":
		c := newClient(*addrF, *timeoutF, *verboseF)
		data, err = c.run(ctx, cmd, args)
	default:
		err = fmt.Errorf("unknown command %q", cmd)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err.Error())
		os.Exit(1)
	}

	if data != nil {
		m, _ := json.MarshalIndent(data, "", "    ")
		fmt.Println(string(m))
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `%s counts exercise repetitions in videos and controls a repcount server.

Usage:
    %s [-url URL][-timeout SECONDS][-verbose] COMMAND [arguments]

Commands:
    process -exercise ID [-o OUTPUT][-report] INPUT   count reps in a video file
    exercises                                         list exercise identifiers
    start -exercise ID                                start a live session on the server
    stop                                              stop the live session
    count                                             print the live rep count
    status                                            print the live session status

Exercises: %s

Example:
    %s process -exercise squat -o squats_out.mp4 squats.mp4
    %s -url http://localhost:5000 start -exercise pushup
`, os.Args[0], os.Args[0], strings.Join(exercise.IDs(), ", "), os.Args[0], os.Args[0])
}
