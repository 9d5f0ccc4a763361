package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// execIface defines the command surface the REPL dispatches to. The real App
// satisfies it; tests provide a lightweight stub.
type execIface interface {
	Collections(ctx context.Context) error
	List(ctx context.Context, args []string) error
	Get(ctx context.Context, args []string) error
	Find(ctx context.Context, args []string) error
	Create(ctx context.Context, args []string) error
	Update(ctx context.Context, args []string) error
	Delete(ctx context.Context, args []string) error
	Sync(ctx context.Context) error
	Status(ctx context.Context) error
	Pending(ctx context.Context) error
	GoOnline(ctx context.Context) error
	GoOffline(ctx context.Context) error
}

const helpText = `Available commands:
  collections                     list collections and their indexes
  list <collection>               list local records
  get <collection> <id>           show one record
  find <collection> <index> <v>   records whose index field equals v
  create <collection> [k=v ...]   create a record (prompts for fields when none given)
  update <collection> <id> [k=v]  update fields of a record
  delete <collection> <id>        delete a record
  sync                            replay queued changes now
  status                          connectivity and queue status
  pending                         list queued changes
  online | offline                resume probing / force offline mode
  exit | quit                     leave the program`

// errUsage makes the REPL print the usage line of the failed command.
var errUsage = errors.New("usage")

var usage = map[string]string{
	"list":   "Usage: list <collection>",
	"get":    "Usage: get <collection> <id>",
	"find":   "Usage: find <collection> <index> <value>",
	"create": "Usage: create <collection> [name=value ...]",
	"update": "Usage: update <collection> <id> [name=value ...]",
	"delete": "Usage: delete <collection> <id>",
}

// runREPL reads commands from reader until EOF or "exit"/"quit". The first
// token selects the command and the rest are passed as arguments. A nil
// prompt disables the prompt, which keeps piped input quiet. Command errors
// are printed and the loop continues.
func runREPL(ctx context.Context, a execIface, prompt func() string, reader *bufio.Reader, w io.Writer) {
	for {
		if prompt != nil {
			fmt.Fprintf(w, "medsync %s> ", prompt())
		}
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		var cmdErr error
		switch cmd {
		case "help":
			fmt.Fprintln(w, helpText)
		case "collections":
			cmdErr = a.Collections(ctx)
		case "l", "list":
			cmd = "list"
			cmdErr = a.List(ctx, args)
		case "get":
			cmdErr = a.Get(ctx, args)
		case "find":
			cmdErr = a.Find(ctx, args)
		case "create":
			cmdErr = a.Create(ctx, args)
		case "update":
			cmdErr = a.Update(ctx, args)
		case "delete":
			cmdErr = a.Delete(ctx, args)
		case "sync":
			cmdErr = a.Sync(ctx)
		case "status":
			cmdErr = a.Status(ctx)
		case "pending":
			cmdErr = a.Pending(ctx)
		case "online":
			cmdErr = a.GoOnline(ctx)
		case "offline":
			cmdErr = a.GoOffline(ctx)
		case "exit", "quit":
			fmt.Fprintln(w, "Bye!")
			return
		default:
			fmt.Fprintln(w, "Unknown command:", cmd)
		}

		switch {
		case cmdErr == nil:
		case errors.Is(cmdErr, errUsage):
			fmt.Fprintln(w, usage[cmd])
		default:
			fmt.Fprintln(w, "Error:", cmdErr)
		}

		if err != nil {
			return
		}
	}
}
