package main

import (
	"context"
	"crewcomms/src/boot"
	"crewcomms/src/events"
	"crewcomms/src/models"
	"crewcomms/src/types"
	"crewcomms/src/utils"
	"encoding/json"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	engineiotypes "github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io/v2/socket"
)

// wsSession holds one authenticated socket's live subscriptions.
type wsSession struct {
	uid    string
	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	subs map[string]events.CancelFunc
}

func (s *wsSession) add(key string, cancel events.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.subs[key]; ok {
		prev()
	}
	s.subs[key] = cancel
}

func (s *wsSession) drop(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.subs[key]; ok {
		cancel()
		delete(s.subs, key)
	}
}

func (s *wsSession) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, cancel := range s.subs {
		cancel()
		delete(s.subs, key)
	}
	s.cancel()
}

// eventArg reads the first event payload as JSON.
func eventArg(args []any) gjson.Result {
	if len(args) == 0 {
		return gjson.Result{}
	}
	if s, ok := args[0].(string); ok && gjson.Valid(s) {
		return gjson.Parse(s)
	}
	b, err := json.Marshal(args[0])
	if err != nil {
		return gjson.Result{}
	}
	return gjson.ParseBytes(b)
}

// ackWith answers the client's ack callback when one was sent.
func ackWith(args []any, err error) {
	if len(args) == 0 {
		return
	}
	ack, ok := args[len(args)-1].(func([]any, error))
	if !ok {
		return
	}
	if err != nil {
		ack([]any{map[string]any{
			"ok":        false,
			"error":     types.UserMessage(err),
			"kind":      types.KindOf(err),
			"retryable": types.Retryable(err),
		}}, nil)
		return
	}
	ack([]any{map[string]any{"ok": true}}, nil)
}

func handshakeToken(client *socket.Socket) string {
	b, err := json.Marshal(client.Handshake().Auth)
	if err != nil {
		return ""
	}
	return gjson.GetBytes(b, "token").String()
}

func setupSocketServer(r *gin.Engine, c *boot.Container) *socket.Server {
	opts := socket.DefaultServerOptions()
	opts.SetServeClient(false)
	opts.SetPingInterval(25 * time.Second)
	opts.SetPingTimeout(20 * time.Second)
	opts.SetMaxHttpBufferSize(1_000_000)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetCors(&engineiotypes.Cors{
		Origin:      "*",
		Credentials: true,
	})

	wss := socket.NewServer(nil, nil)
	wss.On("connection", func(clients ...any) {
		client := clients[0].(*socket.Socket)
		claims, err := utils.ParseJWT(handshakeToken(client))
		if err != nil {
			client.Emit("auth:error", map[string]any{"error": types.UserMessage(types.ErrUnauthenticated), "kind": types.KIND_UNAUTHENTICATED})
			client.Disconnect(true)
			return
		}

		sessCtx, cancel := context.WithCancel(context.Background())
		sess := &wsSession{uid: claims.UID, ctx: sessCtx, cancel: cancel, subs: map[string]events.CancelFunc{}}
		log := c.Log.WithFields(logrus.Fields{"user_id": sess.uid, "socket_id": string(client.Id())})
		log.Debug("socket connected")

		if err := c.Presence.Heartbeat(sessCtx, sess.uid); err != nil {
			log.WithError(err).Warn("initial heartbeat failed")
		}
		sess.add("notifications", c.Notifications.SubscribeUser(sess.uid, func(n *models.CrewNotification) {
			client.Emit("notification", n)
		}))

		client.On("conversation:subscribe", func(args ...any) {
			arg := eventArg(args)
			convID := arg.Get("conversationId").String()
			from, err := models.DecodeCursor(arg.Get("cursor").String())
			if err != nil {
				ackWith(args, types.ValidationFailed("Stream", "cursor is invalid"))
				return
			}
			cancelStream, err := c.Conversations.Stream(sess.ctx, sess.uid, convID, from, func(ev models.MessageEvent) {
				name := "message"
				if ev.Kind == models.MESSAGE_UPDATED {
					name = "message:updated"
				}
				client.Emit(name, ev.Message)
			})
			if err != nil {
				ackWith(args, err)
				return
			}
			sess.add("conversation:"+convID, cancelStream)
			ackWith(args, nil)
		})
		client.On("conversation:unsubscribe", func(args ...any) {
			sess.drop("conversation:" + eventArg(args).Get("conversationId").String())
			ackWith(args, nil)
		})
		client.On("presence:watch", func(args ...any) {
			userID := eventArg(args).Get("userId").String()
			if userID == "" {
				ackWith(args, types.ValidationFailed("WatchPresence", "userId is required"))
				return
			}
			sess.add("presence:"+userID, c.Presence.Subscribe(userID, func(p models.UserPresence) {
				client.Emit("presence", p)
			}))
			ackWith(args, nil)
		})
		client.On("presence:unwatch", func(args ...any) {
			sess.drop("presence:" + eventArg(args).Get("userId").String())
			ackWith(args, nil)
		})
		client.On("typing", func(args ...any) {
			arg := eventArg(args)
			err := c.Presence.SetTyping(sess.ctx, arg.Get("crewId").String(), arg.Get("conversationId").String(), sess.uid, arg.Get("isTyping").Bool())
			ackWith(args, err)
		})
		client.On("heartbeat", func(args ...any) {
			ackWith(args, c.Presence.Heartbeat(sess.ctx, sess.uid))
		})
		client.On("disconnect", func(...any) {
			sess.close()
			if err := c.Presence.Disconnect(context.Background(), sess.uid); err != nil {
				log.WithError(err).Warn("presence disconnect failed")
			}
			log.Debug("socket disconnected")
		})
	})

	r.GET("/socket.io/*any", gin.WrapH(wss.ServeHandler(opts)))
	r.POST("/socket.io/*any", gin.WrapH(wss.ServeHandler(opts)))
	return wss
}
