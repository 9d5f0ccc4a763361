package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/medsync/internal/client/models"
)

func (a *App) Collections(ctx context.Context) error {
	for _, c := range a.catalogue.All() {
		fmt.Fprintf(a.out, "%-14s indexes: %s\n", c.Name, strings.Join(c.Indexes, ", "))
	}
	return nil
}

func (a *App) List(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	recs, err := a.coord.GetAll(ctx, args[0])
	if err != nil {
		return err
	}
	a.printRecords(recs)
	return nil
}

func (a *App) Get(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	rec, err := a.coord.GetByID(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	if rec == nil {
		fmt.Fprintf(a.out, "No record %s in %s\n", args[1], args[0])
		return nil
	}
	a.printRecord(*rec)
	return nil
}

func (a *App) Find(ctx context.Context, args []string) error {
	if len(args) != 3 {
		return errUsage
	}
	recs, err := a.coord.GetByIndex(ctx, args[0], args[1], ParseValue(args[2]))
	if err != nil {
		return err
	}
	a.printRecords(recs)
	return nil
}

func (a *App) Create(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errUsage
	}
	fields, err := a.fields(args[1:])
	if err != nil {
		return err
	}
	rec, err := a.coord.Create(ctx, args[0], fields)
	if err != nil {
		return err
	}
	if rec.OfflineOrigin {
		fmt.Fprintln(a.out, "Created offline, queued for sync:")
	} else {
		fmt.Fprintln(a.out, "Created:")
	}
	a.printRecord(rec)
	return nil
}

func (a *App) Update(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errUsage
	}
	fields, err := a.fields(args[2:])
	if err != nil {
		return err
	}
	rec, err := a.coord.Update(ctx, args[0], args[1], fields)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Updated:")
	a.printRecord(rec)
	return nil
}

func (a *App) Delete(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	if err := a.coord.Delete(ctx, args[0], args[1]); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Deleted %s from %s\n", args[1], args[0])
	return nil
}

// fields takes inline name=value arguments, or prompts for them when none
// were given.
func (a *App) fields(inline []string) (map[string]any, error) {
	if len(inline) > 0 {
		return ParseAssignments(inline)
	}
	return ReadFields(a.reader, a.out)
}

func (a *App) printRecords(recs []models.Record) {
	for _, r := range recs {
		a.printRecord(r)
	}
	fmt.Fprintf(a.out, "%d record(s)\n", len(recs))
}

func (a *App) printRecord(r models.Record) {
	b, err := json.Marshal(r)
	if err != nil {
		fmt.Fprintln(a.out, "Error:", err)
		return
	}
	fmt.Fprintln(a.out, string(b))
}
