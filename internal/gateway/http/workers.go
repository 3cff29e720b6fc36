package http

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/aussiebroadwan/gateway/internal/gateway/broker"
	"github.com/aussiebroadwan/gateway/pkg/httpx"
)

// WorkerRoute binds an HTTP route to a worker operation. Path parameters and
// query values are merged into the message, over any JSON object body.
type WorkerRoute struct {
	Pattern string
	Queue   broker.Queue
	Op      broker.Op
	Params  []string
}

var workerRoutes = []WorkerRoute{
	{Pattern: "GET /v1/profile", Queue: broker.QueueProfile, Op: broker.OpProfileGet},
	{Pattern: "GET /v1/profile/{user_id}", Queue: broker.QueueProfile, Op: broker.OpProfileGet, Params: []string{"user_id"}},
	{Pattern: "PATCH /v1/profile", Queue: broker.QueueProfile, Op: broker.OpProfileUpdate},

	{Pattern: "GET /v1/friends", Queue: broker.QueueFriends, Op: broker.OpFriendsList},
	{Pattern: "POST /v1/friends/{user_id}", Queue: broker.QueueFriends, Op: broker.OpFriendsRequest, Params: []string{"user_id"}},
	{Pattern: "POST /v1/friends/{user_id}/accept", Queue: broker.QueueFriends, Op: broker.OpFriendsAccept, Params: []string{"user_id"}},
	{Pattern: "DELETE /v1/friends/{user_id}", Queue: broker.QueueFriends, Op: broker.OpFriendsRemove, Params: []string{"user_id"}},

	{Pattern: "GET /v1/chat/{channel}", Queue: broker.QueueChat, Op: broker.OpChatHistory, Params: []string{"channel"}},
	{Pattern: "POST /v1/chat/{channel}", Queue: broker.QueueChat, Op: broker.OpChatSend, Params: []string{"channel"}},

	{Pattern: "GET /v1/leaderboard", Queue: broker.QueueLeaderboard, Op: broker.OpLeaderboardTop},
	{Pattern: "GET /v1/leaderboard/{user_id}", Queue: broker.QueueLeaderboard, Op: broker.OpLeaderboardRank, Params: []string{"user_id"}},

	{Pattern: "GET /v1/matches", Queue: broker.QueueMatch, Op: broker.OpMatchList},
	{Pattern: "GET /v1/matches/{match_id}", Queue: broker.QueueMatch, Op: broker.OpMatchGet, Params: []string{"match_id"}},
	{Pattern: "POST /v1/matches", Queue: broker.QueueMatch, Op: broker.OpMatchRecord},
}

// WorkerHandler forwards an authenticated request to a worker and relays the
// worker's status and body unchanged. The caller's claim travels with the
// message.
type WorkerHandler struct {
	Bridge Bridge
	Route  WorkerRoute
}

func (h *WorkerHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims, ok := httpx.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, r, httpx.ErrUnauthenticated)
		return
	}

	msg, err := h.message(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.Bridge.Call(r.Context(), h.Route.Queue, h.Route.Op, msg, claims, nil)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteRaw(w, res.Status, res.Body)
}

// message builds the worker payload. An empty result means the worker gets
// no message field at all.
func (h *WorkerHandler) message(w http.ResponseWriter, r *http.Request) (string, error) {
	fields := map[string]json.RawMessage{}

	if r.Body != nil && r.Body != http.NoBody {
		raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, httpx.MaxBodyBytes))
		if err != nil {
			return "", httpx.ErrBadRequest.WithDescription("request body too large")
		}
		if len(raw) > 0 {
			// A null body decodes without error and leaves fields nil.
			if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
				return "", httpx.ErrBadRequest.WithDescription("body must be a JSON object")
			}
		}
	}

	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			fields[key], _ = json.Marshal(values[0])
		}
	}
	for _, name := range h.Route.Params {
		fields[name], _ = json.Marshal(r.PathValue(name))
	}

	if len(fields) == 0 {
		return "", nil
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
