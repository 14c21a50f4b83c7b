// Package session stores the server-side record behind every issued token.
//
// A token is only honoured while its record exists, so Revoke logs a device
// out immediately and RevokeAll logs a user out everywhere.
//
//	rec, _ := session.Create(ctx, user.ID, user.Role, session.Meta{IP: ip}, ttl)
//	rec, err := session.Find(ctx, claims.ID)
//	_ = session.Revoke(ctx, rec.ID)
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/darcho/darcho/pkg/cache"
)

// ErrNotFound means the session expired or was revoked.
var ErrNotFound = errors.New("session: not found")

// touchEvery limits how often LastSeenAt is rewritten.
const touchEvery = time.Minute

// Record is a live login.
type Record struct {
	ID         string    `json:"id"`
	UserID     uint      `json:"user_id"`
	Role       string    `json:"role"`
	IP         string    `json:"ip,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Meta describes the client that opened the session.
type Meta struct {
	IP        string
	UserAgent string
}

func key(id string) string            { return "darcho:session:" + id }
func userIndexKey(userID uint) string { return fmt.Sprintf("darcho:user:%d:sessions", userID) }

// Create stores a new session valid for ttl.
func Create(ctx context.Context, userID uint, role string, meta Meta, ttl time.Duration) (*Record, error) {
	now := time.Now().UTC()
	rec := &Record{
		ID:         uuid.NewString(),
		UserID:     userID,
		Role:       role,
		IP:         meta.IP,
		UserAgent:  meta.UserAgent,
		CreatedAt:  now,
		LastSeenAt: now,
		ExpiresAt:  now.Add(ttl),
	}
	if err := cache.Set(ctx, key(rec.ID), rec, ttl); err != nil {
		return nil, fmt.Errorf("session: save: %w", err)
	}
	if err := cache.SAdd(ctx, userIndexKey(userID), rec.ID, ttl); err != nil {
		return nil, fmt.Errorf("session: index: %w", err)
	}
	return rec, nil
}

// Find returns the live session with id.
func Find(ctx context.Context, id string) (*Record, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	var rec Record
	if !cache.Get(ctx, key(id), &rec) {
		return nil, ErrNotFound
	}
	if time.Now().After(rec.ExpiresAt) {
		return nil, ErrNotFound
	}
	return &rec, nil
}

// Touch bumps LastSeenAt, at most once per minute, keeping the original
// expiry. A session revoked since it was read stays revoked.
func Touch(ctx context.Context, rec *Record) error {
	now := time.Now().UTC()
	if now.Sub(rec.LastSeenAt) < touchEvery {
		return nil
	}
	remaining := rec.ExpiresAt.Sub(now)
	if remaining <= 0 {
		return ErrNotFound
	}
	rec.LastSeenAt = now
	ok, err := cache.Replace(ctx, key(rec.ID), rec, remaining)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// Revoke deletes one session. Revoking an unknown id is not an error.
func Revoke(ctx context.Context, id string) error {
	var rec Record
	if cache.Get(ctx, key(id), &rec) {
		_ = cache.SRem(ctx, userIndexKey(rec.UserID), id)
	}
	return cache.Del(ctx, key(id))
}

// RevokeAll deletes every session of userID and returns how many were live.
func RevokeAll(ctx context.Context, userID uint) (int, error) {
	ids, err := cache.SMembers(ctx, userIndexKey(userID))
	if err != nil {
		return 0, fmt.Errorf("session: list: %w", err)
	}
	n := 0
	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		if _, err := Find(ctx, id); err == nil {
			n++
		}
		keys = append(keys, key(id))
	}
	keys = append(keys, userIndexKey(userID))
	if err := cache.Del(ctx, keys...); err != nil {
		return n, fmt.Errorf("session: revoke all: %w", err)
	}
	return n, nil
}

// ForUser lists the live sessions of userID.
func ForUser(ctx context.Context, userID uint) ([]Record, error) {
	ids, err := cache.SMembers(ctx, userIndexKey(userID))
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		rec, err := Find(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, *rec)
	}
	return out, nil
}
