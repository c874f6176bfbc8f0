// Package ghost implements the recovery state machine for tracked
// originals that disappear or move underneath clutter.
//
// The watcher feeds delete and move events in; the resolver stamps the
// registry with the intermediate ghost status, asks the presentation
// layer for a decision, and applies it through the sandbox manager and
// reference layer. Decisions for one alias are serialized; events for
// different aliases resolve independently.
package ghost

import (
	"context"
	"fmt"
	"sync"

	"github.com/clutter-sh/clutter/internal/refs"
	"github.com/clutter-sh/clutter/internal/sandbox"
	"github.com/clutter-sh/clutter/internal/schema"
	"github.com/clutter-sh/clutter/internal/store"
)

// Choice is one recovery action offered to the user.
type Choice string

const (
	// Delete-event choices.
	ChoiceRestore       Choice = "restore"
	ChoiceKeepGhost     Choice = "keep-ghost"
	ChoiceDeleteForReal Choice = "delete-for-real"
	// ChoiceUntrack is the only option when the item was never pulled:
	// there is no sandbox copy to restore from.
	ChoiceUntrack Choice = "untrack"

	// Move-event choices.
	ChoiceFollow Choice = "follow"
	ChoiceGhost  Choice = "ghost"
	// ChoiceCancel leaves the record untouched. The move already
	// happened on disk; cancelling does not revert it.
	ChoiceCancel Choice = "cancel"
)

// Prompter is what the resolver needs from the presentation layer.
type Prompter interface {
	// Choose presents an ordered list of choices and blocks until the
	// user picks one.
	Choose(ctx context.Context, prompt string, options []Choice) (Choice, error)
	// Report emits one line of status text.
	Report(message string)
}

// Resolver drives ghost recovery for tracked items.
type Resolver struct {
	store   *store.Store
	sandbox *sandbox.Manager
	refs    *refs.Manager
	prompt  Prompter

	mu      sync.Mutex
	pending map[string]bool
}

// NewResolver wires a resolver over the given collaborators.
func NewResolver(st *store.Store, sm *sandbox.Manager, rm *refs.Manager, p Prompter) *Resolver {
	return &Resolver{
		store:   st,
		sandbox: sm,
		refs:    rm,
		prompt:  p,
		pending: make(map[string]bool),
	}
}

// DeleteChoices returns the choices offered for a delete event on item.
func DeleteChoices(item *schema.TrackedItem) []Choice {
	if !item.EverPulled {
		return []Choice{ChoiceUntrack}
	}
	return []Choice{ChoiceRestore, ChoiceKeepGhost, ChoiceDeleteForReal}
}

// MoveChoices returns the choices offered for a move event.
func MoveChoices() []Choice {
	return []Choice{ChoiceFollow, ChoiceGhost, ChoiceCancel}
}

// begin marks alias as having a decision in flight. Returns false when a
// prompt for the alias is already outstanding; the caller drops the event
// rather than dispatching a second prompt.
func (r *Resolver) begin(alias string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending[alias] {
		return false
	}
	r.pending[alias] = true
	return true
}

func (r *Resolver) end(alias string) {
	r.mu.Lock()
	delete(r.pending, alias)
	r.mu.Unlock()
}

// HandleDelete processes a delete event for alias: stamps the ghost
// status, prompts, and applies the chosen recovery.
func (r *Resolver) HandleDelete(ctx context.Context, alias string) error {
	if !r.begin(alias) {
		return nil
	}
	defer r.end(alias)

	item, err := r.store.GetItemContext(ctx, alias)
	if err != nil {
		return err
	}

	if !item.EverPulled {
		r.prompt.Report(fmt.Sprintf(
			"%s: original deleted and never pulled; no ghost available, cannot recover", alias))
		choice, err := r.prompt.Choose(ctx,
			fmt.Sprintf("Original for %q was deleted. It was never pulled, so nothing can be restored.", alias),
			DeleteChoices(item))
		if err != nil {
			return err
		}
		if choice != ChoiceUntrack {
			return fmt.Errorf("unexpected choice %q for unrecoverable delete", choice)
		}
		return r.applyDelete(ctx, alias, choice)
	}

	if err := r.markStatus(ctx, alias, schema.StatusGhostDeleted); err != nil {
		return err
	}

	choice, err := r.prompt.Choose(ctx,
		fmt.Sprintf("Original for %q was deleted. The sandbox still holds the last pulled state.", alias),
		DeleteChoices(item))
	if err != nil {
		return err
	}
	return r.applyDelete(ctx, alias, choice)
}

// ResolveDelete applies a delete-event decision without prompting. Used
// by command invocations that resolve a ghost non-interactively.
func (r *Resolver) ResolveDelete(ctx context.Context, alias string, choice Choice) error {
	if !r.begin(alias) {
		return fmt.Errorf("alias %q: %w", alias, schema.ErrConcurrentModification)
	}
	defer r.end(alias)
	return r.applyDelete(ctx, alias, choice)
}

func (r *Resolver) applyDelete(ctx context.Context, alias string, choice Choice) error {
	switch choice {
	case ChoiceRestore:
		if _, err := r.sandbox.Restore(ctx, alias); err != nil {
			return err
		}
		r.prompt.Report(fmt.Sprintf("%s: original restored from sandbox", alias))
		return nil

	case ChoiceKeepGhost:
		if err := r.markStatus(ctx, alias, schema.StatusGhost); err != nil {
			return err
		}
		if err := r.logChange(ctx, alias, schema.ActionGhost, "kept as ghost after delete"); err != nil {
			return err
		}
		r.prompt.Report(fmt.Sprintf("%s: kept as ghost; sandbox retained", alias))
		return nil

	case ChoiceDeleteForReal:
		if err := r.sandbox.Untrack(ctx, alias); err != nil {
			return err
		}
		if err := r.logChange(ctx, alias, schema.ActionDelete, "deletion accepted; all tracking state removed"); err != nil {
			return err
		}
		r.prompt.Report(fmt.Sprintf("%s: deletion accepted; tracking removed", alias))
		return nil

	case ChoiceUntrack:
		if err := r.sandbox.Untrack(ctx, alias); err != nil {
			return err
		}
		r.prompt.Report(fmt.Sprintf("%s: tracking removed", alias))
		return nil

	default:
		return fmt.Errorf("unknown delete resolution %q", choice)
	}
}

// HandleMove processes a move event: the original moved from its recorded
// path to newPath.
func (r *Resolver) HandleMove(ctx context.Context, alias, newPath string) error {
	if !r.begin(alias) {
		return nil
	}
	defer r.end(alias)

	item, err := r.store.GetItemContext(ctx, alias)
	if err != nil {
		return err
	}

	if err := r.markStatus(ctx, alias, schema.StatusGhostMoved); err != nil {
		return err
	}

	choice, err := r.prompt.Choose(ctx,
		fmt.Sprintf("Original for %q moved from %s to %s.", alias, item.OriginalPath, newPath),
		MoveChoices())
	if err != nil {
		return err
	}
	return r.applyMove(ctx, alias, newPath, choice)
}

// ResolveMove applies a move-event decision without prompting.
func (r *Resolver) ResolveMove(ctx context.Context, alias, newPath string, choice Choice) error {
	if !r.begin(alias) {
		return fmt.Errorf("alias %q: %w", alias, schema.ErrConcurrentModification)
	}
	defer r.end(alias)
	return r.applyMove(ctx, alias, newPath, choice)
}

func (r *Resolver) applyMove(ctx context.Context, alias, newPath string, choice Choice) error {
	switch choice {
	case ChoiceFollow:
		err := r.store.Mutate(ctx, alias, func(it *schema.TrackedItem) (*schema.TrackedItem, error) {
			it.OriginalPath = newPath
			it.Status = schema.StatusActive
			return it, nil
		})
		if err != nil {
			return err
		}
		if err := r.refs.Repair(alias, newPath); err != nil {
			return err
		}
		if err := r.logChange(ctx, alias, schema.ActionFollow, "followed to "+newPath); err != nil {
			return err
		}
		r.prompt.Report(fmt.Sprintf("%s: now tracking %s", alias, newPath))
		return nil

	case ChoiceGhost:
		if err := r.markStatus(ctx, alias, schema.StatusGhost); err != nil {
			return err
		}
		if err := r.logChange(ctx, alias, schema.ActionGhost, "kept as ghost after move"); err != nil {
			return err
		}
		r.prompt.Report(fmt.Sprintf("%s: kept as ghost at old path", alias))
		return nil

	case ChoiceCancel:
		// The move stays on disk either way; cancel changes nothing.
		r.prompt.Report(fmt.Sprintf("%s: move left unresolved", alias))
		return nil

	default:
		return fmt.Errorf("unknown move resolution %q", choice)
	}
}

// markStatus sets the item status under the registry's record lock.
func (r *Resolver) markStatus(ctx context.Context, alias string, status schema.ItemStatus) error {
	return r.store.Mutate(ctx, alias, func(it *schema.TrackedItem) (*schema.TrackedItem, error) {
		it.Status = status
		return it, nil
	})
}

func (r *Resolver) logChange(ctx context.Context, alias string, action schema.ChangeAction, outcome string) error {
	return r.store.AppendChangeContext(ctx, &schema.ChangeEntry{
		Alias:   alias,
		Action:  action,
		Outcome: outcome,
	})
}
