package store

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"

	"chatrelay/pkg/logger"
	"chatrelay/pkg/models"
	"chatrelay/pkg/utils"
)

// Key spaces for message channels. Direct conversations and group rooms
// share the same layout under different prefixes.
const (
	SpaceDirect = "chat"
	SpaceGroup  = "groupchat"
)

// seq provides a small counter so two messages appended in the same
// nanosecond still get distinct, ordered keys.
var seq uint64

func msgPrefix(space, channelID string) []byte {
	return []byte(space + ":" + channelID + ":msg:")
}

// AppendMessage appends a message to a channel by inserting a new key with
// a sortable timestamp prefix. Messages are ordered by insertion time.
// Missing MessageID, Timestamp and Status fields are filled in, and the
// stored message is returned.
func AppendMessage(space, channelID string, m models.Message) (models.Message, error) {
	if db == nil {
		return m, notOpened()
	}
	if m.MessageID == "" {
		m.MessageID = utils.GenID()
	}
	if m.Timestamp == "" {
		m.Timestamp = utils.NowTimestamp()
	}
	if m.Status == "" {
		m.Status = models.StatusSent
	}

	// Key format: <space>:<channelID>:msg:<unix_nano_padded>-<seq>
	ts := time.Now().UTC().UnixNano()
	s := atomic.AddUint64(&seq, 1)
	key := fmt.Sprintf("%s:%s:msg:%020d-%06d", space, channelID, ts, s)

	data, err := json.Marshal(m)
	if err != nil {
		return m, fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := db.Set([]byte(key), data, pebble.Sync); err != nil {
		logger.Error("append_message_failed", "space", space, "channel", channelID, "key", key, "error", err)
		return m, err
	}
	messagesAppended.WithLabelValues(space).Inc()
	logger.Debug("message_appended", "space", space, "channel", channelID, "msg_id", m.MessageID)
	return m, nil
}

// ListMessages returns messages for a channel in insertion order, or
// newest-first when desc is set. A limit of 0 means no limit.
func ListMessages(space, channelID string, limit int, desc bool) ([]models.Message, error) {
	iter, err := prefixIter(msgPrefix(space, channelID))
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []models.Message
	decode := func() error {
		var m models.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			return fmt.Errorf("invalid message JSON at %s: %w", iter.Key(), err)
		}
		out = append(out, m)
		return nil
	}
	if desc {
		for ok := iter.Last(); ok; ok = iter.Prev() {
			if err := decode(); err != nil {
				return nil, err
			}
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	} else {
		for ok := iter.First(); ok; ok = iter.Next() {
			if err := decode(); err != nil {
				return nil, err
			}
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, iter.Error()
}

// LatestMessage returns the most recent message in a channel. The second
// return value is false when the channel is empty.
func LatestMessage(space, channelID string) (models.Message, bool, error) {
	var m models.Message
	iter, err := prefixIter(msgPrefix(space, channelID))
	if err != nil {
		return m, false, err
	}
	defer iter.Close()
	if !iter.Last() {
		return m, false, iter.Error()
	}
	if err := json.Unmarshal(iter.Value(), &m); err != nil {
		return m, false, fmt.Errorf("invalid message JSON at %s: %w", iter.Key(), err)
	}
	return m, true, nil
}

// MutateMessage finds the message with the given wire timestamp in a
// channel and applies fn to it, persisting the result under the same key.
// Returns the updated message, or ErrNotFound when no message matches.
func MutateMessage(space, channelID, timestamp string, fn func(*models.Message) error) (models.Message, error) {
	var out models.Message
	if db == nil {
		return out, notOpened()
	}
	iter, err := prefixIter(msgPrefix(space, channelID))
	if err != nil {
		return out, err
	}
	defer iter.Close()

	for ok := iter.First(); ok; ok = iter.Next() {
		var m models.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			return out, fmt.Errorf("invalid message JSON at %s: %w", iter.Key(), err)
		}
		if m.Timestamp != timestamp {
			continue
		}
		if err := fn(&m); err != nil {
			return out, err
		}
		key := append([]byte(nil), iter.Key()...)
		nb, err := json.Marshal(m)
		if err != nil {
			return out, fmt.Errorf("failed to marshal message: %w", err)
		}
		if err := db.Set(key, nb, pebble.Sync); err != nil {
			logger.Error("mutate_message_failed", "space", space, "channel", channelID, "key", string(key), "error", err)
			return out, err
		}
		messageMutations.WithLabelValues(space, m.Status).Inc()
		return m, nil
	}
	if err := iter.Error(); err != nil {
		return out, err
	}
	return out, ErrNotFound
}

// DeleteChannelMessages removes every message stored for a channel.
func DeleteChannelMessages(space, channelID string) error {
	if db == nil {
		return notOpened()
	}
	prefix := msgPrefix(space, channelID)
	return db.DeleteRange(prefix, prefixUpperBound(prefix), pebble.Sync)
}
