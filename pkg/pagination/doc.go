// Package pagination dispatches parallel page reads for paginated collections.
//
// A collection exposes two capabilities: Counter, which reports how many
// items match a filter set, and PageReader, which returns one 1-based page.
// The dispatcher calls Count exactly once, derives the page count as
// ceil(total/pageSize) and submits one read task per page to a worker pool
// group. Every task pushes what it read onto a stream.Channel, either the
// whole page as one chunk (batched mode) or item by item (streaming mode).
//
// Example usage:
//
//	d, err := pagination.NewDispatcher[document.Document](collection, pagination.DefaultConfig())
//	if err != nil {
//		return err // collection lacks Count or ReadPage
//	}
//	plan, err := d.Plan(ctx)
//	out := stream.New[document.Document](d.Capacity(plan))
//	group := workers.NewGroup("measurements")
//	_ = d.Dispatch(ctx, group, out, plan)
//	group.Supervise(func() { out.Close() })
//
// The count is only a best-effort upper bound: concurrent writers may make
// later pages shorter or longer than predicted, so the number of delivered
// items can differ from the planned total. Exactly ExpectedPages tasks are
// dispatched regardless.
//
// A failing page read is logged with its page number and contributes zero
// items. It is neither retried nor allowed to abort sibling pages.
package pagination
