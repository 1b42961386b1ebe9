// Package audit writes an audit trail of checkout activity to the
// database. Customer emails are encrypted at rest; without an
// encryption key configured they are stored as truncated hashes.
package audit

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"

	"encore.dev/storage/sqldb"
)

var secrets struct {
	AuditEncryptionKey string //encore:secret
}

// encryptSensitive encrypts a value using AES-GCM.
func encryptSensitive(plaintext string) (string, error) {
	if secrets.AuditEncryptionKey == "" {
		hash := sha256.Sum256([]byte(plaintext))
		return "hashed:" + base64.URLEncoding.EncodeToString(hash[:8]), nil
	}

	key := sha256.Sum256([]byte(secrets.AuditEncryptionKey))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return "", err
	}
	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aesGCM.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := aesGCM.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.URLEncoding.EncodeToString(ciphertext), nil
}

// Entry is one audit log row. Pointer fields are optional and stored
// as NULL when nil.
type Entry struct {
	SessionID     *string     // owning cart session
	Action        string      // e.g. "checkout.submit"
	EntityType    string      // e.g. "order"
	EntityID      string      // e.g. order reference
	Meta          interface{} // arbitrary JSON-serializable metadata
	Email         *string     // customer email, encrypted before insert
	CorrelationID *string
}

// Log writes an audit log entry and returns the inserted id.
func Log(ctx context.Context, db *sqldb.Database, e Entry) (int64, error) {
	var metaJSON []byte
	if e.Meta == nil {
		metaJSON = []byte("{}")
	} else if b, ok := e.Meta.([]byte); ok {
		metaJSON = b
	} else {
		b, err := json.Marshal(e.Meta)
		if err != nil {
			metaJSON = []byte("{}")
		} else {
			metaJSON = b
		}
	}

	var (
		session interface{}
		email   interface{}
		corr    interface{}
	)
	if e.SessionID != nil {
		session = *e.SessionID
	}
	if e.CorrelationID != nil {
		corr = *e.CorrelationID
	}
	if e.Email != nil && *e.Email != "" {
		if encrypted, err := encryptSensitive(*e.Email); err == nil {
			email = encrypted
		} else {
			email = "encrypt_failed"
		}
	}

	var id int64
	err := db.Stdlib().QueryRowContext(ctx, `
		INSERT INTO audit_logs (session_id, action, entity_type, entity_id, meta, email_enc, correlation_id)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7)
		RETURNING id
	`, session, e.Action, e.EntityType, e.EntityID, string(metaJSON), email, corr).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// Option configures an audit Entry before logging.
type Option func(*Entry)

// WithSession sets the owning session id.
func WithSession(sessionID string) Option { return func(e *Entry) { e.SessionID = &sessionID } }

// WithEmail attaches the customer email, encrypted at rest.
func WithEmail(email string) Option { return func(e *Entry) { e.Email = &email } }

// WithCorrelation sets the correlation/request id.
func WithCorrelation(corr string) Option { return func(e *Entry) { e.CorrelationID = &corr } }

// LogAction is a convenience around Log for common auditing calls.
func LogAction(ctx context.Context, db *sqldb.Database, action, entityType, entityID string, meta interface{}, opts ...Option) (int64, error) {
	entry := Entry{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Meta:       meta,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&entry)
		}
	}
	return Log(ctx, db, entry)
}
