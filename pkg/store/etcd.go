package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/hypermesh-online/meshcoord/pkg/model"
)

// Key-space constants. All coordinator keys live under /meshcoord/v1/ to
// avoid collisions with other etcd tenants.
const keyPrefix = "/meshcoord/v1"

// key builds a fully-qualified etcd key for the given store type and ID.
func key(storeType, id string) string {
	return fmt.Sprintf("%s/%s/%s", keyPrefix, storeType, id)
}

// prefix builds the etcd key prefix for listing all items of a store type.
func prefix(storeType string) string {
	return fmt.Sprintf("%s/%s/", keyPrefix, storeType)
}

// EtcdStore is an etcd-backed implementation of the Store interface suitable
// for production deployments. All operations are serialised through etcd's
// linearisable reads/writes; concurrent access from multiple control-plane
// replicas is therefore safe.
type EtcdStore struct {
	client     *clientv3.Client
	events     *EtcdEventLogStore
	agreements *EtcdAgreementStore
	usage      *EtcdUsageStore
}

// NewEtcdStore dials the etcd cluster at endpoints and returns a ready
// EtcdStore. The caller must call Close when finished.
func NewEtcdStore(endpoints []string) (*EtcdStore, error) {
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("etcd dial: %w", err)
	}
	return &EtcdStore{
		client:     client,
		events:     &EtcdEventLogStore{client: client},
		agreements: &EtcdAgreementStore{client: client},
		usage:      &EtcdUsageStore{client: client},
	}, nil
}

func (s *EtcdStore) Events() EventLogStore      { return s.events }
func (s *EtcdStore) Agreements() AgreementStore { return s.agreements }
func (s *EtcdStore) Usage() UsageStore          { return s.usage }

// Close releases the underlying etcd client connection.
func (s *EtcdStore) Close() error {
	return s.client.Close()
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

// etcdPut serialises v as JSON and writes it to the given key.
func etcdPut(ctx context.Context, client *clientv3.Client, k string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if _, err := client.Put(ctx, k, string(data)); err != nil {
		return fmt.Errorf("etcd put %q: %w", k, err)
	}
	return nil
}

// etcdGet retrieves the value at key k and deserialises it into v.
// Returns (false, nil) if the key does not exist.
func etcdGet(ctx context.Context, client *clientv3.Client, k string, v any) (bool, error) {
	resp, err := client.Get(ctx, k)
	if err != nil {
		return false, fmt.Errorf("etcd get %q: %w", k, err)
	}
	if len(resp.Kvs) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(resp.Kvs[0].Value, v); err != nil {
		return false, fmt.Errorf("unmarshal %q: %w", k, err)
	}
	return true, nil
}

// etcdList retrieves all values under pfx, decoded as T, in key order.
func etcdList[T any](ctx context.Context, client *clientv3.Client, pfx string, opts ...clientv3.OpOption) ([]T, error) {
	opts = append([]clientv3.OpOption{clientv3.WithPrefix()}, opts...)
	resp, err := client.Get(ctx, pfx, opts...)
	if err != nil {
		return nil, fmt.Errorf("etcd list %q: %w", pfx, err)
	}
	out := make([]T, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var item T
		if err := json.Unmarshal(kv.Value, &item); err != nil {
			return nil, fmt.Errorf("unmarshal %q: %w", string(kv.Key), err)
		}
		out = append(out, item)
	}
	return out, nil
}

// background returns a context for internal etcd operations (no deadline).
func background() context.Context {
	return context.Background()
}

// ---------------------------------------------------------------------------
// EtcdEventLogStore
// ---------------------------------------------------------------------------

// EtcdEventLogStore implements EventLogStore against etcd. Events are keyed
// by their zero-padded sequence number so lexicographic key order matches
// event order.
type EtcdEventLogStore struct {
	client *clientv3.Client
}

// Append writes the event under its sequence key.
func (s *EtcdEventLogStore) Append(evt *model.Event) error {
	k := key("events", fmt.Sprintf("%020d", evt.Seq))
	return etcdPut(background(), s.client, k, evt)
}

// List returns the most recent events, newest first.
func (s *EtcdEventLogStore) List(limit int) ([]model.Event, error) {
	opts := []clientv3.OpOption{
		clientv3.WithSort(clientv3.SortByKey, clientv3.SortDescend),
	}
	if limit > 0 {
		opts = append(opts, clientv3.WithLimit(int64(limit)))
	}
	return etcdList[model.Event](background(), s.client, prefix("events"), opts...)
}

// ---------------------------------------------------------------------------
// EtcdAgreementStore
// ---------------------------------------------------------------------------

// EtcdAgreementStore implements AgreementStore against etcd.
type EtcdAgreementStore struct {
	client *clientv3.Client
}

// Put writes (or overwrites) an agreement record.
func (s *EtcdAgreementStore) Put(a *model.SharingAgreement) error {
	return etcdPut(background(), s.client, key("agreements", a.AgreementID), a)
}

// Get returns the agreement with the given ID, or an error if not found.
func (s *EtcdAgreementStore) Get(id string) (*model.SharingAgreement, error) {
	var a model.SharingAgreement
	found, err := etcdGet(background(), s.client, key("agreements", id), &a)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("agreement %q not found", id)
	}
	return &a, nil
}

// List returns all agreement records.
func (s *EtcdAgreementStore) List() ([]model.SharingAgreement, error) {
	return etcdList[model.SharingAgreement](background(), s.client, prefix("agreements"))
}

// ---------------------------------------------------------------------------
// EtcdUsageStore
// ---------------------------------------------------------------------------

// EtcdUsageStore implements UsageStore against etcd. Records are keyed by
// agreement ID and record ID so a prefix scan lists one agreement's records.
type EtcdUsageStore struct {
	client *clientv3.Client
}

// Append writes a usage record.
func (s *EtcdUsageStore) Append(rec *model.UsageRecord) error {
	k := key("usage", rec.AgreementID+"/"+rec.RecordID)
	return etcdPut(background(), s.client, k, rec)
}

// List returns usage records for the agreement, oldest first.
func (s *EtcdUsageStore) List(agreementID string, limit int) ([]model.UsageRecord, error) {
	pfx := prefix("usage")
	if agreementID != "" {
		pfx += agreementID + "/"
	}
	var opts []clientv3.OpOption
	if limit > 0 {
		opts = append(opts, clientv3.WithLimit(int64(limit)))
	}
	return etcdList[model.UsageRecord](background(), s.client, pfx, opts...)
}
