package status

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/stockdesk/apipulse/internal/model"
)

// ErrNotFound is returned by operations that refuse to create a record.
var ErrNotFound = errors.New("status record not found")

// fields a patch may never overwrite; derived ones are recomputed on every read.
var protectedFields = map[string]struct{}{
	model.FieldDomain:    {},
	model.FieldKey:       {},
	model.FieldCreatedAt: {},
	model.FieldUpdatedAt: {},
	"hitRatio":           {},
	"currentThreatLevel": {},

	// maintained by the record operations: request totals, mean weights and
	// the outcome pairs that must sum to them
	model.FieldTotalRequests:      {},
	model.FieldSuccessfulRequests: {},
	model.FieldFailedRequests:     {},
	"loginAttempts":               {},
	"successfulLogins":            {},
	"failedLogins":                {},
	"transactionCount":            {},
	"successfulTransactions":      {},
	"failedTransactions":          {},
	"queryCount":                  {},
}

const maxThreatLevel = 10

// Updater turns observations into atomic record mutations.
type Updater struct {
	store RecordStore
	log   zerolog.Logger
	now   func() time.Time
}

// NewUpdater returns an Updater writing to store.
func NewUpdater(store RecordStore, log zerolog.Logger) *Updater {
	return &Updater{store: store, log: log, now: time.Now}
}

func (u *Updater) mutate(ctx context.Context, d model.Domain, key string, m model.Mutation) (model.Record, error) {
	if key == "" {
		return nil, fmt.Errorf("%w: empty %s key", ErrValidation, d)
	}
	rec, err := u.store.Mutate(ctx, d, key, m)
	if err != nil {
		return nil, fmt.Errorf("mutate %s/%s: %w", d, key, err)
	}
	return rec, nil
}

// RecordRequest folds one logged API call into the record of its endpoint key.
func (u *Updater) RecordRequest(ctx context.Context, o model.Observation) error {
	key := EndpointKey(o.Method, o.URL)
	_, err := u.mutate(ctx, model.DomainAPI, key, requestMutation(o, u.now().UTC()))
	return err
}

func (u *Updater) RecordLoginAttempt(ctx context.Context, endpoint string, success bool, reason string) error {
	_, err := u.mutate(ctx, model.DomainAuth, endpoint, loginMutation(success, reason, u.now().UTC()))
	return err
}

// RecordTokenRejected counts a bearer token refused by the auth guard.
func (u *Updater) RecordTokenRejected(ctx context.Context, endpoint string, expired bool) error {
	_, err := u.mutate(ctx, model.DomainAuth, endpoint, tokenRejectedMutation(expired, u.now().UTC()))
	return err
}

func (u *Updater) PingExternalService(ctx context.Context, service string, responseTime float64, success bool) error {
	if responseTime < 0 {
		return fmt.Errorf("%w: negative response time", ErrValidation)
	}
	_, err := u.mutate(ctx, model.DomainExternalService, service, pingMutation(service, responseTime, success, u.now().UTC()))
	return err
}

func (u *Updater) RecordCacheOperation(ctx context.Context, endpoint string, op CacheOperation) error {
	m, err := cacheMutation(op, u.now().UTC())
	if err != nil {
		return err
	}
	_, err = u.mutate(ctx, model.DomainCache, endpoint, m)
	return err
}

// RecordSecurityEvent counts an event; details are only logged.
func (u *Updater) RecordSecurityEvent(ctx context.Context, endpoint string, ev SecurityEvent, details map[string]any) error {
	m, err := securityMutation(ev, u.now().UTC())
	if err != nil {
		return err
	}
	u.log.Debug().Str("endpoint", endpoint).Str("event", string(ev)).Interface("details", details).Msg("security event")
	_, err = u.mutate(ctx, model.DomainSecurity, endpoint, m)
	return err
}

func (u *Updater) RecordBusinessTransaction(ctx context.Context, function string, tx BusinessTransaction) error {
	if tx.TransactionTime < 0 {
		return fmt.Errorf("%w: negative transaction time", ErrValidation)
	}
	_, err := u.mutate(ctx, model.DomainBusinessLogic, function, transactionMutation(tx, u.now().UTC()))
	return err
}

func (u *Updater) RecordDatabaseProbe(ctx context.Context, endpoint string, p DatabaseProbe) error {
	_, err := u.mutate(ctx, model.DomainDatabase, endpoint, probeMutation(p, u.now().UTC()))
	return err
}

// Update overwrites the given fields of a record, creating it if needed.
func (u *Updater) Update(ctx context.Context, d model.Domain, key string, patch map[string]any) (model.Record, error) {
	now := u.now().UTC()
	base, err := u.current(ctx, d, key, now)
	if err != nil {
		return nil, err
	}
	if err := validatePatch(d, base, patch); err != nil {
		return nil, err
	}
	m := newMutation(now)
	for k, v := range patch {
		m.Set[k] = v
	}
	return u.mutate(ctx, d, key, m)
}

// MarkHealthy clears the sticky unhealthy flag of an existing record.
func (u *Updater) MarkHealthy(ctx context.Context, d model.Domain, key string) (model.Record, error) {
	existing, err := u.store.Get(ctx, d, key)
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", d, key, err)
	}
	if existing == nil {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, d, key)
	}
	m := model.Mutation{Set: map[string]any{
		model.FieldIsHealthy: true,
		model.FieldUpdatedAt: u.now().UTC(),
	}}
	return u.mutate(ctx, d, key, m)
}

// current returns the stored document of a record, or its defaults when it
// does not exist yet.
func (u *Updater) current(ctx context.Context, d model.Domain, key string, now time.Time) (model.Document, error) {
	if key == "" {
		return nil, fmt.Errorf("%w: empty %s key", ErrValidation, d)
	}
	rec, err := u.store.Get(ctx, d, key)
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", d, key, err)
	}
	if rec == nil {
		return model.Defaults(d, key, now), nil
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode %s/%s: %w", d, key, err)
	}
	var doc model.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", d, key, err)
	}
	return doc, nil
}

// validatePatch applies patch to base and checks that the result still decodes
// into a valid record of domain d.
func validatePatch(d model.Domain, base model.Document, patch map[string]any) error {
	for k, v := range patch {
		if _, ok := protectedFields[k]; ok {
			return fmt.Errorf("%w: field %q cannot be set", ErrValidation, k)
		}
		if path, ok := negative(k, v); ok {
			return fmt.Errorf("%w: field %q must not be negative", ErrValidation, path)
		}
	}
	doc := model.Mutation{Set: patch}.Apply(base)
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	rec, err := model.NewRecord(d)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(rec); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	b := rec.Base()
	if s := b.Status; s != model.StatusActive && s != model.StatusInactive &&
		s != model.StatusMaintenance && s != model.StatusDeprecated {
		return fmt.Errorf("%w: unknown status %q", ErrValidation, s)
	}
	if b.TotalRequests != b.SuccessfulRequests+b.FailedRequests {
		return fmt.Errorf("%w: totalRequests %d != successfulRequests %d + failedRequests %d",
			ErrValidation, b.TotalRequests, b.SuccessfulRequests, b.FailedRequests)
	}
	if sec, ok := rec.(*model.SecurityStatus); ok && (sec.ThreatLevel < 0 || sec.ThreatLevel > maxThreatLevel) {
		return fmt.Errorf("%w: threatLevel %d outside 0-%d", ErrValidation, sec.ThreatLevel, maxThreatLevel)
	}
	return nil
}

// negative finds a negative number in v, descending into nested objects.
// Every numeric field of a status record is a count, a duration, a size or a rate.
func negative(path string, v any) (string, bool) {
	switch x := v.(type) {
	case map[string]any:
		for k, inner := range x {
			if p, ok := negative(path+"."+k, inner); ok {
				return p, true
			}
		}
	case float64, float32, int, int32, int64, json.Number:
		if model.Number(x) < 0 {
			return path, true
		}
	}
	return "", false
}
