package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	pubnubgo "github.com/pubnub/go/v7"
)

var _ Pubnub = (*pubnub)(nil)

type PubNubConfig struct {
	PublishKey, SubscribeKey, SecretKey, UserID string
}

// Pubnub publishes player events to per-player PubNub channels and grants
// players read access to their own channel.
type Pubnub interface {
	Publish(ctx context.Context, playerID string, messagePayload any) (string, error)
	GenGrantToken(ctx context.Context, playerID string) (string, error)
}

type pubnub struct {
	pn *pubnubgo.PubNub
}

func NewPubnub(pnCfg *PubNubConfig) (Pubnub, error) {
	if pnCfg == nil {
		return nil, fmt.Errorf("[NewPubnub] pnCfg: must not be nil")
	}
	if pnCfg.PublishKey == "" || pnCfg.SubscribeKey == "" {
		return nil, fmt.Errorf("[NewPubnub] publish and subscribe keys are required")
	}

	cfg := pubnubgo.NewConfigWithUserId(pubnubgo.UserId(pnCfg.UserID))
	cfg.PublishKey = pnCfg.PublishKey
	cfg.SubscribeKey = pnCfg.SubscribeKey
	cfg.SecretKey = pnCfg.SecretKey

	return &pubnub{pn: pubnubgo.NewPubNub(cfg)}, nil
}

// PlayerChannel is the PubNub channel a player's events are mirrored to.
func PlayerChannel(playerID string) string {
	return fmt.Sprintf("channel-%s", playerID)
}

func (p *pubnub) Publish(ctx context.Context, playerID string, messagePayload any) (string, error) {
	messageJSON, err := json.Marshal(messagePayload)
	if err != nil {
		return "", fmt.Errorf("pubnub.Publish: json.Marshal: %w", err)
	}

	resp, _, err := p.pn.PublishWithContext(ctx).
		Channel(PlayerChannel(playerID)).
		Message(string(messageJSON)).
		Execute()
	if err != nil {
		return "", fmt.Errorf("pubnub.Publish: %w", err)
	}

	return strconv.FormatInt(resp.Timestamp, 10), nil
}

func (p *pubnub) GenGrantToken(ctx context.Context, playerID string) (string, error) {
	permissions := map[string]pubnubgo.ChannelPermissions{
		PlayerChannel(playerID): {
			Read: true,
		},
	}

	token, _, err := p.pn.GrantTokenWithContext(ctx).
		TTL(60).
		AuthorizedUUID(playerID).
		Channels(permissions).
		Execute()
	if err != nil {
		return "", fmt.Errorf("pubnub.GenGrantToken: %w", err)
	}

	return token.Data.Token, nil
}
