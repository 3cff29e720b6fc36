package broker

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aussiebroadwan/gateway/pkg/jwtx"
)

// Queue names a backend worker's inbound queue.
type Queue string

const (
	QueueProfile     Queue = "profile"
	QueueFriends     Queue = "friends"
	QueueChat        Queue = "chat"
	QueueLeaderboard Queue = "leaderboard"
	QueueMatch       Queue = "match"
)

// Op is an operation code understood by exactly one worker queue.
type Op int

const (
	OpProfileGet Op = iota + 100
	OpProfileCreate
	OpProfileUpdate
	OpProfileDelete
)

const (
	OpFriendsList Op = iota + 200
	OpFriendsRequest
	OpFriendsAccept
	OpFriendsRemove
)

const (
	OpChatHistory Op = iota + 300
	OpChatSend
)

const (
	OpLeaderboardTop Op = iota + 400
	OpLeaderboardRank
)

const (
	OpMatchList Op = iota + 500
	OpMatchGet
	OpMatchRecord
)

var queueOps = map[Queue]map[Op]string{
	QueueProfile: {
		OpProfileGet:    "profile.get",
		OpProfileCreate: "profile.create",
		OpProfileUpdate: "profile.update",
		OpProfileDelete: "profile.delete",
	},
	QueueFriends: {
		OpFriendsList:    "friends.list",
		OpFriendsRequest: "friends.request",
		OpFriendsAccept:  "friends.accept",
		OpFriendsRemove:  "friends.remove",
	},
	QueueChat: {
		OpChatHistory: "chat.history",
		OpChatSend:    "chat.send",
	},
	QueueLeaderboard: {
		OpLeaderboardTop:  "leaderboard.top",
		OpLeaderboardRank: "leaderboard.rank",
	},
	QueueMatch: {
		OpMatchList:   "match.list",
		OpMatchGet:    "match.get",
		OpMatchRecord: "match.record",
	},
}

// AllQueues lists every worker queue the gateway talks to.
func AllQueues() []Queue {
	return []Queue{QueueProfile, QueueFriends, QueueChat, QueueLeaderboard, QueueMatch}
}

var (
	ErrUnknownQueue = errors.New("broker: unknown queue")
	ErrUnknownOp    = errors.New("broker: op not valid for queue")
	ErrBadStatus    = errors.New("broker: reply status out of range")
)

// ValidateOp reports whether op belongs to q.
func ValidateOp(q Queue, op Op) error {
	ops, ok := queueOps[q]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownQueue, q)
	}
	if _, ok := ops[op]; !ok {
		return fmt.Errorf("%w: %d on %q", ErrUnknownOp, op, q)
	}
	return nil
}

// OpName returns a stable label for logs and metrics.
func OpName(q Queue, op Op) string {
	if name, ok := queueOps[q][op]; ok {
		return name
	}
	return fmt.Sprintf("%s.%d", q, op)
}

// Request is published to a worker queue. An empty ID means no reply is
// expected.
type Request struct {
	ID      string      `json:"id,omitempty"`
	Op      Op          `json:"op"`
	Message string      `json:"message,omitempty"`
	Claim   jwtx.Claims `json:"claim"`
}

// Reply is consumed from the gateway's reply queue.
type Reply struct {
	ReqID   string `json:"req_id"`
	Op      Op     `json:"op"`
	Status  int    `json:"status"`
	Message string `json:"message,omitempty"`
}

// DecodeReply parses and validates a reply body.
func DecodeReply(body []byte) (Reply, error) {
	var r Reply
	if err := json.Unmarshal(body, &r); err != nil {
		return Reply{}, fmt.Errorf("broker: decode reply: %w", err)
	}
	if r.ReqID == "" {
		return Reply{}, errors.New("broker: reply without req_id")
	}
	if r.Status < 100 || r.Status > 599 {
		return Reply{}, fmt.Errorf("%w: %d", ErrBadStatus, r.Status)
	}
	return r, nil
}

// Notification is pushed by workers for delivery to a user's sockets.
type Notification struct {
	UserID  string          `json:"user_id"`
	Payload json.RawMessage `json:"payload"`
}

// DecodeNotification parses a notification body.
func DecodeNotification(body []byte) (Notification, error) {
	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return Notification{}, fmt.Errorf("broker: decode notification: %w", err)
	}
	if n.UserID == "" {
		return Notification{}, errors.New("broker: notification without user_id")
	}
	return n, nil
}
