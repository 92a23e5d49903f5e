// Package store provides the two persistence substrates of the core: a KV
// store (Redis in production, in-memory in development and tests) holding
// conversations, episodes, preferences, caches and checkpoints, and a SQLite
// LocalStore holding papers, evidence spans, claims and reports.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by Get when a key is absent or expired.
var ErrNotFound = errors.New("store: key not found")

// KV is the minimal key-value contract the core depends on. All keys used by
// the core are built by the Key* helpers below.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	SetEx(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	LPush(ctx context.Context, key string, values ...string) error
	LTrim(ctx context.Context, key string, start, stop int64) error
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Scan(ctx context.Context, pattern string) ([]string, error)
	Close() error
}

// Key builders for every KV key the core uses.

func KeyConversation(id string) string { return "conversation:" + id }
func KeyEpisode(id string) string      { return "episode:" + id }
func KeyEpisodic(userID string) string { return "episodic:" + userID }
func KeyPreferences(userID string) string {
	return "preferences:" + userID
}
func KeySession(sessionID string) string { return "session:" + sessionID }
func KeyCheckpoint(sessionID, phase string) string {
	return fmt.Sprintf("checkpoint:%s:%s", sessionID, phase)
}
func KeyToolCache(tool, argsHash string) string {
	return fmt.Sprintf("tool_cache:%s:%s", tool, argsHash)
}
func KeyPDFCache(url string) string      { return "pdf_cache:" + url }
func KeyPDFPagesCache(url string) string { return "pdf_pages_cache:" + url }

// Standard TTLs.
const (
	TTLConversation = 2 * time.Hour
	TTLEpisode      = 30 * 24 * time.Hour
	TTLPreferences  = 90 * 24 * time.Hour
	TTLSession      = 24 * time.Hour
	TTLPDFCache     = 7 * 24 * time.Hour
)
