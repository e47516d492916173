package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iksnae/chatrelay/internal"
)

var newCmd = &cobra.Command{
	Use:   "new",
	Short: "Start a new session",
	Long: `Start a new session for the owner. When the most recent session has no
messages yet it is reused and moved to the top instead.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withOwnerStore(func(owner internal.OwnerKey, store *internal.Store) error {
			sess, reused, err := store.CreateOrReuse(cmd.Context(), owner)
			if err != nil {
				return err
			}
			verb := "Created"
			if reused {
				verb = "Reusing empty"
			}
			internal.PrintSuccess(cmd.OutOrStdout(), fmt.Sprintf("%s session %d: %s", verb, sess.ID, sess.Title))
			return nil
		})
	},
}

var renameCmd = &cobra.Command{
	Use:   "rename <session-id> <title>",
	Short: "Rename a session",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID("session", args[0])
		if err != nil {
			return err
		}
		title := strings.Join(args[1:], " ")
		return withOwnerStore(func(owner internal.OwnerKey, store *internal.Store) error {
			if err := store.Rename(cmd.Context(), owner, id, title); err != nil {
				return notFound(err, "session", id)
			}
			internal.PrintSuccess(cmd.OutOrStdout(), fmt.Sprintf("Renamed session %d to %q", id, strings.TrimSpace(title)))
			return nil
		})
	},
}

var pinCmd = &cobra.Command{
	Use:   "pin <session-id>",
	Short: "Toggle the pinned flag of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID("session", args[0])
		if err != nil {
			return err
		}
		return withOwnerStore(func(owner internal.OwnerKey, store *internal.Store) error {
			pinned, err := store.TogglePin(cmd.Context(), owner, id)
			if err != nil {
				return notFound(err, "session", id)
			}
			state := "Unpinned"
			if pinned {
				state = "Pinned"
			}
			internal.PrintSuccess(cmd.OutOrStdout(), fmt.Sprintf("%s session %d", state, id))
			return nil
		})
	},
}

var reorderCmd = &cobra.Command{
	Use:   "reorder <session-id>...",
	Short: "Set the display order of sessions",
	Long: `Rank the given sessions so they list in the order given, first on top.
Ids the owner does not own are skipped.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids := make([]int64, len(args))
		for i, arg := range args {
			id, err := parseID("session", arg)
			if err != nil {
				internal.LogWarn("Skipping %v", err)
				continue
			}
			ids[i] = id
		}
		return withOwnerStore(func(owner internal.OwnerKey, store *internal.Store) error {
			if err := store.Reorder(cmd.Context(), owner, ids); err != nil {
				return err
			}
			internal.PrintSuccess(cmd.OutOrStdout(), fmt.Sprintf("Reordered %d session(s)", len(ids)))
			return nil
		})
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "Delete a session and all of its messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID("session", args[0])
		if err != nil {
			return err
		}
		return withOwnerStore(func(owner internal.OwnerKey, store *internal.Store) error {
			if err := store.Delete(cmd.Context(), owner, id); err != nil {
				return notFound(err, "session", id)
			}
			internal.PrintSuccess(cmd.OutOrStdout(), fmt.Sprintf("Deleted session %d", id))
			return nil
		})
	},
}

var deleteTurnCmd = &cobra.Command{
	Use:   "delete-turn <message-id>",
	Short: "Delete a question and everything produced in response to it",
	Long: `Delete the turn that starts at a HUMAN message: the message itself and
every message after it up to the next HUMAN message.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID("message", args[0])
		if err != nil {
			return err
		}
		return withOwnerStore(func(owner internal.OwnerKey, store *internal.Store) error {
			ctx := cmd.Context()
			sessionID, err := store.MessageSession(ctx, owner, id)
			if err != nil {
				return notFound(err, "message", id)
			}
			deleted, err := store.DeleteTurn(ctx, sessionID, id)
			if errors.Is(err, internal.ErrNotHuman) {
				return fmt.Errorf("message %d: %w", id, err)
			}
			if err != nil {
				return notFound(err, "message", id)
			}
			internal.PrintSuccess(cmd.OutOrStdout(), fmt.Sprintf("Deleted %d message(s) from session %d", deleted, sessionID))
			return nil
		})
	},
}

// withOwnerStore resolves the owner flags, opens the store, and runs fn.
func withOwnerStore(fn func(owner internal.OwnerKey, store *internal.Store) error) error {
	owner, err := ownerFromFlags()
	if err != nil {
		return err
	}
	store, err := loadStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	return fn(owner, store)
}

func init() {
	rootCmd.AddCommand(newCmd, renameCmd, pinCmd, reorderCmd, deleteCmd, deleteTurnCmd)
}
