package lib

import (
	"context"
	"crewcomms/src/types"
	"fmt"
	"log"

	"firebase.google.com/go/v4/messaging"
	"github.com/redis/go-redis/v9"
	"github.com/tidwall/gjson"
)

func fcmKey(uid string) string {
	return uid + ":fcm"
}

// DeviceTokens caches the latest FCM registration token per user as a redis JSON doc.
type DeviceTokens struct {
	rd *redis.Client
}

func NewDeviceTokens(rd *redis.Client) *DeviceTokens {
	return &DeviceTokens{rd: rd}
}

func (d *DeviceTokens) Register(ctx context.Context, uid, token, platform string) error {
	err := d.rd.JSONSet(ctx, fcmKey(uid), "$", map[string]string{
		"token":    token,
		"platform": platform,
	}).Err()
	if err != nil {
		log.Printf("[FCM] could not store token for %s: %s\n", uid, err.Error())
		return types.WrapError(types.KIND_NETWORK_UNAVAILABLE, "devices.Register", err)
	}
	return nil
}

func (d *DeviceTokens) Token(ctx context.Context, uid string) (string, error) {
	raw, err := d.rd.JSONGet(ctx, fcmKey(uid), "$.token").Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return gjson.Get(raw, "0").String(), nil
}

type TokenSource interface {
	Token(ctx context.Context, uid string) (string, error)
}

type MulticastSender interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// FCMPusher delivers notification toasts to every recipient with a registered device.
type FCMPusher struct {
	tokens TokenSource
	sender MulticastSender
}

func NewFCMPusher(tokens TokenSource, sender MulticastSender) *FCMPusher {
	return &FCMPusher{tokens: tokens, sender: sender}
}

func (p *FCMPusher) Notify(ctx context.Context, userIDs []string, title, message string, severity types.Severity, data map[string]string) error {
	var tokens []string
	for _, uid := range userIDs {
		tok, err := p.tokens.Token(ctx, uid)
		if err != nil {
			log.Printf("[FCM] token lookup for %s failed: %s\n", uid, err.Error())
			continue
		}
		if tok != "" {
			tokens = append(tokens, tok)
		}
	}
	if len(tokens) == 0 {
		return nil
	}
	payload := make(map[string]string, len(data)+1)
	for k, v := range data {
		payload[k] = v
	}
	payload["severity"] = string(severity)

	res, err := p.sender.SendEachForMulticast(ctx, &messaging.MulticastMessage{
		Tokens:       tokens,
		Notification: &messaging.Notification{Title: title, Body: message},
		Data:         payload,
	})
	if err != nil {
		log.Printf("[FCM] send failed: %s\n", err.Error())
		return types.WrapError(types.KIND_NETWORK_UNAVAILABLE, "fcm.Notify", err)
	}
	if res.FailureCount > 0 {
		log.Printf("[FCM] %d of %d deliveries failed\n", res.FailureCount, len(tokens))
		if res.SuccessCount == 0 {
			return fmt.Errorf("fcm: all %d deliveries failed", res.FailureCount)
		}
	}
	return nil
}
