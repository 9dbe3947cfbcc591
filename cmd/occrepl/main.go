// Command occrepl is a minimal line-oriented REPL over kvstore,
// analogous to the teacher's ExecCommand dispatch: begin a session,
// issue get/put/insert/remove/commit/rollback lines against it, one
// session active at a time.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/occdb/txncore/kvstore"
)

func main() {
	debug := pflag.Bool("debug", false, "enable verbose transaction logging")
	lowLevelScan := pflag.Bool("low-level-scan", false, "use node-version phantom tracking instead of absent-range tracking")
	pflag.Parse()

	var logger *zap.SugaredLogger
	if *debug {
		l, err := zap.NewDevelopment()
		if err != nil {
			fmt.Fprintln(os.Stderr, "occrepl: building logger:", err)
			os.Exit(1)
		}
		logger = l.Sugar()
	}

	opts := []kvstore.StoreOption{kvstore.WithLogger(logger)}
	if *lowLevelScan {
		opts = append(opts, kvstore.WithLowLevelScan())
	}
	store := kvstore.NewStore(opts...)

	var session *kvstore.Session
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		command, args := fields[0], fields[1:]

		if command == "begin" {
			session = store.Begin()
			fmt.Println("ok")
			continue
		}
		if session == nil {
			fmt.Println("error: no active session, run begin first")
			continue
		}

		out, err := session.ExecCommand(command, args)
		if err != nil {
			fmt.Println("error:", err)
			continue
		}
		if command == "commit" || command == "rollback" {
			session = nil
		}
		if out != "" {
			fmt.Println(out)
		} else {
			fmt.Println("ok")
		}
	}
}
