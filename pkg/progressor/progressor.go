package progressor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"chatrelay/pkg/logger"
	"chatrelay/pkg/store"
)

const (
	systemVersionKey    = "system:version"
	systemInProgressKey = "system:migration_in_progress"
)

// Sync performs upgrade work between versions. Edit in-place for migration logic.
func Sync(ctx context.Context, from, to string) error {
	logger.Info("progressor_sync_start", "from", from, "to", to)

	// Migration: earlier deployments created friend edges without a
	// conversation id and allocated one lazily on first message. Backfill
	// the id so the chat list never shows friends with no channel. Safe
	// to run multiple times; resolve adopts any id that already exists.
	keys, err := store.ListKeys("friend:")
	if err != nil {
		logger.Error("progressor_list_friends_failed", "error", err)
		return err
	}
	for _, k := range keys {
		parts := strings.SplitN(k, ":", 3)
		if len(parts) != 3 {
			continue
		}
		userID, friendID := parts[1], parts[2]
		f, err := store.GetFriend(userID, friendID)
		if err != nil {
			logger.Error("progressor_load_friend_failed", "key", k, "error", err)
			continue
		}
		if f.ConversationID != "" {
			continue
		}
		conv, err := store.ResolveConversation(userID, friendID)
		if err != nil {
			logger.Error("progressor_resolve_failed", "user", userID, "friend", friendID, "error", err)
			continue
		}
		logger.Info("progressor_conversation_backfilled", "user", userID, "friend", friendID, "conversation", conv)
	}

	logger.Info("progressor_sync_done", "from", from, "to", to)
	return nil
}

// Run checks for a version change and runs Sync if needed.
// Returns (invoked, error): invoked is true if Sync ran.
func Run(ctx context.Context, newVersion string) (bool, error) {
	stored, err := store.GetKey(systemVersionKey)
	if err != nil {
		logger.Error("progressor_read_version_failed", "error", err)
	}
	logger.Info("progressor_version_check", "stored", stored, "running", newVersion)
	if stored == newVersion {
		logger.Info("progressor_noop", "version", newVersion)
		return false, nil
	}

	marker := map[string]string{
		"from":       stored,
		"to":         newVersion,
		"started_at": time.Now().UTC().Format(time.RFC3339),
	}
	mb, _ := json.Marshal(marker)
	if err := store.SaveKey(systemInProgressKey, mb); err != nil {
		logger.Error("progressor_write_inprogress_failed", "error", err)
		return true, fmt.Errorf("failed to write in-progress marker: %w", err)
	}

	logger.Info("progressor_start_sync", "from", stored, "to", newVersion)
	if err := Sync(ctx, stored, newVersion); err != nil {
		logger.Error("progressor_sync_failed", "from", stored, "to", newVersion, "error", err)
		return true, err
	}

	if err := store.SaveKey(systemVersionKey, []byte(newVersion)); err != nil {
		logger.Error("progressor_persist_version_failed", "version", newVersion, "error", err)
		return true, fmt.Errorf("failed to persist new version: %w", err)
	}
	if err := store.DeleteKey(systemInProgressKey); err != nil {
		logger.Error("progressor_delete_inprogress_failed", "error", err)
	}

	logger.Info("progressor_version_persisted", "version", newVersion)
	return true, nil
}
