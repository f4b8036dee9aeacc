package psp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pavlovicisidora/sep/internal/kvstore"
)

// SessionStore keeps sessions in a kvstore backend, Redis in production.
// The session body lives under the STAN; the bank payment id and the
// merchant order id are alias keys pointing back at it.
type SessionStore struct {
	store kvstore.Store
	ttl   time.Duration
}

func NewSessionStore(store kvstore.Store, ttl time.Duration) *SessionStore {
	return &SessionStore{store: store, ttl: ttl}
}

func stanKey(stan string) string     { return "session:stan:" + stan }
func paymentKey(id string) string    { return "session:payment:" + id }
func orderKey(orderID string) string { return "session:order:" + orderID }

func (s *SessionStore) Save(ctx context.Context, sess *Session) error {
	body, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", sess.Stan, err)
	}
	if err := s.store.Set(ctx, stanKey(sess.Stan), string(body), s.ttl); err != nil {
		return fmt.Errorf("failed to store session %s: %w", sess.Stan, err)
	}
	if sess.BankPaymentID != "" {
		if err := s.store.Set(ctx, paymentKey(sess.BankPaymentID), sess.Stan, s.ttl); err != nil {
			return fmt.Errorf("failed to index session %s by payment id: %w", sess.Stan, err)
		}
	}
	if sess.MerchantOrderID != "" {
		if err := s.store.Set(ctx, orderKey(sess.MerchantOrderID), sess.Stan, s.ttl); err != nil {
			return fmt.Errorf("failed to index session %s by order id: %w", sess.Stan, err)
		}
	}
	return nil
}

func (s *SessionStore) GetByStan(ctx context.Context, stan string) (*Session, error) {
	body, err := s.store.Get(ctx, stanKey(stan))
	if err != nil {
		if err == kvstore.ErrNotFound {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to load session %s: %w", stan, err)
	}
	sess := &Session{}
	if err := json.Unmarshal([]byte(body), sess); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", stan, err)
	}
	return sess, nil
}

func (s *SessionStore) GetByPaymentID(ctx context.Context, paymentID string) (*Session, error) {
	return s.getByAlias(ctx, paymentKey(paymentID))
}

func (s *SessionStore) GetByOrderID(ctx context.Context, orderID string) (*Session, error) {
	return s.getByAlias(ctx, orderKey(orderID))
}

func (s *SessionStore) getByAlias(ctx context.Context, key string) (*Session, error) {
	stan, err := s.store.Get(ctx, key)
	if err != nil {
		if err == kvstore.ErrNotFound {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to resolve session alias %s: %w", key, err)
	}
	return s.GetByStan(ctx, stan)
}
