package cli

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/medsync/internal/client/models"
	"github.com/dmitrijs2005/medsync/internal/client/services"
)

func (a *App) Sync(ctx context.Context) error {
	res, err := a.coord.SyncPendingChanges(ctx)
	if errors.Is(err, services.ErrSyncSkipped) {
		fmt.Fprintln(a.out, "Sync skipped:", err)
		return nil
	}
	if err != nil {
		return err
	}
	a.printResult(res)
	return nil
}

func (a *App) Status(ctx context.Context) error {
	st, err := a.coord.Status(ctx)
	if err != nil {
		return err
	}

	mode := "offline"
	if st.Online {
		mode = "online"
	}
	fmt.Fprintf(a.out, "Mode:     %s\n", mode)
	fmt.Fprintf(a.out, "Syncing:  %t\n", st.Syncing)
	fmt.Fprintf(a.out, "Pending:  %d\n", st.PendingCount)
	if !st.NextRetryAt.IsZero() {
		fmt.Fprintf(a.out, "Retry at: %s\n", st.NextRetryAt.Local().Format(time.TimeOnly))
	}
	if st.LastResult == nil {
		fmt.Fprintln(a.out, "Last sync: never")
		return nil
	}
	fmt.Fprintf(a.out, "Last sync: %s\n", st.LastResult.FinishedAt.Local().Format(time.DateTime))
	a.printResult(*st.LastResult)
	return nil
}

func (a *App) Pending(ctx context.Context) error {
	changes, err := a.store.ListPendingChanges(ctx)
	if err != nil {
		return err
	}
	if len(changes) == 0 {
		fmt.Fprintln(a.out, "No pending changes")
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tOPERATION\tCOLLECTION\tRECORD\tQUEUED\tATTEMPTS\tLAST ERROR")
	for _, ch := range changes {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%d\t%s\n",
			ch.Seq, ch.Operation, ch.Collection, ch.RecordID,
			ch.Timestamp.Local().Format(time.DateTime), ch.Attempts, ch.LastError)
	}
	return tw.Flush()
}

// GoOnline resumes reachability probing. The first probe runs right away,
// so the mode flips as soon as the server answers.
func (a *App) GoOnline(ctx context.Context) error {
	a.startWatcher(ctx)
	fmt.Fprintln(a.out, "Probing the server; switching to online mode once it answers")
	return nil
}

// GoOffline forces offline mode until "online" is entered.
func (a *App) GoOffline(ctx context.Context) error {
	a.stopWatcher()
	a.monitor.SetOnline(false)
	fmt.Fprintln(a.out, "Offline mode forced; changes will be queued")
	return nil
}

func (a *App) printResult(res models.SyncResult) {
	fmt.Fprintf(a.out, "Synced %d, failed %d\n", res.SyncedCount, res.FailedCount)
	for _, e := range res.Errors {
		target := e.Collection
		if e.RecordID != "" {
			target += "/" + e.RecordID
		}
		fmt.Fprintf(a.out, "  %s %s: %s\n", e.Operation, target, e.Message)
	}
}
