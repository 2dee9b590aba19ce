// SPDX-License-Identifier: MIT

package storage

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/sl-cache/stagelinq-cache/internal/xerrors"
)

// Store wraps a *sql.DB with the cache's data-access operations.
type Store struct {
	db *sql.DB
}

// New wraps an already-opened database handle.
func New(db *sql.DB) *Store { return &Store{db: db} }

// CacheKey derives the stable secondary grouping identifier:
// "{identifier}_{data_type}_{provider}_{first8(hex(sha256(url)))}".
func CacheKey(identifier, dataType, provider, url string) string {
	sum := sha256.Sum256([]byte(url))
	return fmt.Sprintf("%s_%s_%s_%s", identifier, dataType, provider, hex.EncodeToString(sum[:])[:8])
}

// Entry is one cached_data row's payload and metadata as seen by callers.
type Entry struct {
	Data     []byte
	Metadata map[string]any
}

// Decoded returns the entry's payload decoded as JSON if possible,
// falling back to the raw bytes.
func (e *Entry) Decoded() any {
	return deserialize(e.Data)
}

func serialize(value any) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("storage: serialize value: %w", err)
		}
		return b, nil
	}
}

func deserialize(raw []byte) any {
	var v any
	if err := json.Unmarshal(raw, &v); err == nil {
		return v
	}
	return raw
}

// StoreParams bundles Store's arguments.
type StoreParams struct {
	URL        string
	Identifier string
	DataType   string
	Provider   string
	Value      any
	TTL        time.Duration
	Metadata   map[string]any
}

// Store inserts or replaces one cached_data row keyed by URL.
func (s *Store) Store(p StoreParams) error {
	data, err := serialize(p.Value)
	if err != nil {
		return xerrors.New(xerrors.KindStorage, "storage.store", err)
	}
	var metaJSON sql.NullString
	if p.Metadata != nil {
		b, err := json.Marshal(p.Metadata)
		if err != nil {
			return xerrors.New(xerrors.KindStorage, "storage.store.metadata", err)
		}
		metaJSON = sql.NullString{String: string(b), Valid: true}
	}

	now := time.Now().Unix()
	expiresAt := now + int64(p.TTL.Seconds())
	cacheKey := CacheKey(p.Identifier, p.DataType, p.Provider, p.URL)

	_, err = s.db.Exec(`
		INSERT INTO cached_data
		(url, cache_key, identifier, data_type, provider, data_value, metadata,
		 created_at, expires_at, access_count, last_accessed, data_size)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, NULL, ?)
		ON CONFLICT(url) DO UPDATE SET
		cache_key=excluded.cache_key, identifier=excluded.identifier,
		data_type=excluded.data_type, provider=excluded.provider,
		data_value=excluded.data_value, metadata=excluded.metadata,
		created_at=excluded.created_at, expires_at=excluded.expires_at,
		access_count=0, last_accessed=NULL, data_size=excluded.data_size
	`, p.URL, cacheKey, p.Identifier, p.DataType, p.Provider, data, metaJSON, now, expiresAt, len(data))
	if err != nil {
		return xerrors.New(xerrors.KindStorage, "storage.store", err)
	}
	return nil
}

// RetrieveByURL returns the entry for url if it exists and has not
// expired, bumping its access counters.
func (s *Store) RetrieveByURL(url string) (*Entry, error) {
	now := time.Now().Unix()
	row := s.db.QueryRow(`
		SELECT data_value, metadata FROM cached_data
		WHERE url = ? AND expires_at > ?
	`, url, now)

	var data []byte
	var metaJSON sql.NullString
	if err := row.Scan(&data, &metaJSON); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, xerrors.New(xerrors.KindStorage, "storage.retrieve_by_url", err)
	}

	if _, err := s.db.Exec(`
		UPDATE cached_data SET access_count = access_count + 1, last_accessed = ?
		WHERE url = ?
	`, now, url); err != nil {
		return nil, xerrors.New(xerrors.KindStorage, "storage.retrieve_by_url.bump", err)
	}

	entry := &Entry{Data: data}
	if metaJSON.Valid {
		_ = json.Unmarshal([]byte(metaJSON.String), &entry.Metadata)
	}
	return entry, nil
}

// IdentifierMatch is one row returned by RetrieveByIdentifier.
type IdentifierMatch struct {
	URL      string
	Data     []byte
	Metadata map[string]any
}

// RetrieveByIdentifier returns either one uniformly-random non-expired
// match (random=true) or every non-expired match (random=false), for
// (identifier, data_type, provider?).
func (s *Store) RetrieveByIdentifier(identifier, dataType, provider string, random bool) ([]IdentifierMatch, error) {
	now := time.Now().Unix()
	query := `SELECT url, data_value, metadata FROM cached_data
		WHERE identifier = ? AND data_type = ? AND expires_at > ?`
	args := []any{identifier, dataType, now}
	if provider != "" {
		query += ` AND provider = ?`
		args = append(args, provider)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, xerrors.New(xerrors.KindStorage, "storage.retrieve_by_identifier", err)
	}
	defer rows.Close()

	var matches []IdentifierMatch
	for rows.Next() {
		var m IdentifierMatch
		var metaJSON sql.NullString
		if err := rows.Scan(&m.URL, &m.Data, &metaJSON); err != nil {
			return nil, xerrors.New(xerrors.KindStorage, "storage.retrieve_by_identifier.scan", err)
		}
		if metaJSON.Valid {
			_ = json.Unmarshal([]byte(metaJSON.String), &m.Metadata)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.New(xerrors.KindStorage, "storage.retrieve_by_identifier.rows", err)
	}
	if len(matches) == 0 {
		return nil, nil
	}

	for _, m := range matches {
		if _, err := s.db.Exec(`UPDATE cached_data SET access_count = access_count + 1, last_accessed = ? WHERE url = ?`, now, m.URL); err != nil {
			return nil, xerrors.New(xerrors.KindStorage, "storage.retrieve_by_identifier.bump", err)
		}
	}

	if random {
		pick := matches[rand.Intn(len(matches))]
		return []IdentifierMatch{pick}, nil
	}
	return matches, nil
}

// GetCacheKeysForIdentifier returns the distinct cache_key values stored
// under identifier, regardless of expiry.
func (s *Store) GetCacheKeysForIdentifier(identifier string) ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT cache_key FROM cached_data WHERE identifier = ?`, identifier)
	if err != nil {
		return nil, xerrors.New(xerrors.KindStorage, "storage.cache_keys_for_identifier", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, xerrors.New(xerrors.KindStorage, "storage.cache_keys_for_identifier.scan", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// CleanupExpired deletes every cached_data row past its expiry and
// returns the number of rows removed.
func (s *Store) CleanupExpired() (int64, error) {
	res, err := s.db.Exec(`DELETE FROM cached_data WHERE expires_at <= ?`, time.Now().Unix())
	if err != nil {
		return 0, xerrors.New(xerrors.KindStorage, "storage.cleanup_expired", err)
	}
	return res.RowsAffected()
}

// Maintenance runs CleanupExpired then VACUUMs the database.
func (s *Store) Maintenance() (int64, error) {
	n, err := s.CleanupExpired()
	if err != nil {
		return 0, err
	}
	if _, err := s.db.Exec(`VACUUM`); err != nil {
		return n, xerrors.New(xerrors.KindStorage, "storage.maintenance.vacuum", err)
	}
	return n, nil
}

// PendingRequestTTL is how long a terminal pending_requests row survives
// before CleanupStalePending removes it.
const PendingRequestTTL = 24 * time.Hour

// CleanupStalePending deletes terminal pending_requests rows older than
// PendingRequestTTL, run at process start.
func (s *Store) CleanupStalePending() (int64, error) {
	cutoff := time.Now().Add(-PendingRequestTTL).Unix()
	res, err := s.db.Exec(`
		DELETE FROM pending_requests
		WHERE status IN ('completed', 'failed') AND created_at < ?
	`, cutoff)
	if err != nil {
		return 0, xerrors.New(xerrors.KindStorage, "storage.cleanup_stale_pending", err)
	}
	return res.RowsAffected()
}

// PendingRequest mirrors the data model for a durable work item.
type PendingRequest struct {
	RequestID   string
	Provider    string
	RequestKey  string
	Params      json.RawMessage
	Priority    int
	CreatedAt   int64
	Attempts    int
	LastAttempt sql.NullInt64
	Status      string
}

// QueueRequest inserts a new pending request with a stable ID derived
// from provider+key+params, status "pending".
func (s *Store) QueueRequest(provider, requestKey string, params any, priority int) (string, error) {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return "", xerrors.New(xerrors.KindStorage, "storage.queue_request.params", err)
	}
	requestID := uuid.NewSHA1(uuid.NameSpaceOID, append([]byte(provider+"|"+requestKey+"|"), paramsJSON...)).String()

	_, err = s.db.Exec(`
		INSERT INTO pending_requests (request_id, provider, request_key, params, priority, created_at, attempts, status)
		VALUES (?, ?, ?, ?, ?, ?, 0, 'pending')
		ON CONFLICT(request_id) DO NOTHING
	`, requestID, provider, requestKey, string(paramsJSON), priority, time.Now().Unix())
	if err != nil {
		return "", xerrors.New(xerrors.KindStorage, "storage.queue_request", err)
	}
	return requestID, nil
}

// GetNextRequest atomically claims the highest-priority, oldest pending
// request, setting it to "processing" and bumping attempts.
func (s *Store) GetNextRequest() (*PendingRequest, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, xerrors.New(xerrors.KindStorage, "storage.get_next_request.begin", err)
	}
	defer tx.Rollback()

	row := tx.QueryRow(`
		SELECT request_id, provider, request_key, params, priority, created_at, attempts, last_attempt, status
		FROM pending_requests
		WHERE status = 'pending'
		ORDER BY priority ASC, created_at ASC
		LIMIT 1
	`)

	var pr PendingRequest
	var params string
	if err := row.Scan(&pr.RequestID, &pr.Provider, &pr.RequestKey, &params, &pr.Priority,
		&pr.CreatedAt, &pr.Attempts, &pr.LastAttempt, &pr.Status); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, xerrors.New(xerrors.KindStorage, "storage.get_next_request.scan", err)
	}
	pr.Params = json.RawMessage(params)

	now := time.Now().Unix()
	if _, err := tx.Exec(`
		UPDATE pending_requests SET status = 'processing', attempts = attempts + 1, last_attempt = ?
		WHERE request_id = ?
	`, now, pr.RequestID); err != nil {
		return nil, xerrors.New(xerrors.KindStorage, "storage.get_next_request.claim", err)
	}
	pr.Status = "processing"
	pr.Attempts++
	pr.LastAttempt = sql.NullInt64{Int64: now, Valid: true}

	if err := tx.Commit(); err != nil {
		return nil, xerrors.New(xerrors.KindStorage, "storage.get_next_request.commit", err)
	}
	return &pr, nil
}

// CompleteRequest writes the terminal status for a claimed request.
func (s *Store) CompleteRequest(requestID string, success bool) error {
	status := "completed"
	if !success {
		status = "failed"
	}
	if _, err := s.db.Exec(`UPDATE pending_requests SET status = ? WHERE request_id = ?`, status, requestID); err != nil {
		return xerrors.New(xerrors.KindStorage, "storage.complete_request", err)
	}
	return nil
}
