package lifecycle

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
	"go.uber.org/zap"
)

// EtcdElector uses an etcd session-backed election so exactly one serve
// replica drives contest phase transitions at a time; the rest observe
// IsLeader() == false and simply skip their tick.
type EtcdElector struct {
	client   *clientv3.Client
	session  *concurrency.Session
	election *concurrency.Election
	key      string
	logger   *zap.Logger

	isLeader int32 // atomic bool
}

// NewEtcdElector connects to etcd and begins campaigning for leadership
// under key in the background. It returns immediately; IsLeader() starts
// reporting true once the campaign succeeds.
func NewEtcdElector(ctx context.Context, endpoints []string, key string, logger *zap.Logger) (*EtcdElector, error) {
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("lifecycle: connect etcd: %w", err)
	}

	session, err := concurrency.NewSession(client, concurrency.WithTTL(15))
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("lifecycle: create etcd session: %w", err)
	}

	e := &EtcdElector{
		client:   client,
		session:  session,
		election: concurrency.NewElection(session, key),
		key:      key,
		logger:   logger,
	}

	go e.campaign(ctx)

	return e, nil
}

func (e *EtcdElector) campaign(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.session.Done():
			e.logger.Warn("lifecycle: etcd session expired, re-campaigning")
			atomic.StoreInt32(&e.isLeader, 0)
		default:
		}

		if err := e.election.Campaign(ctx, e.key); err != nil {
			if ctx.Err() != nil {
				return
			}
			e.logger.Error("lifecycle: etcd campaign failed", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		atomic.StoreInt32(&e.isLeader, 1)
		e.logger.Info("acquired contest scheduler leadership")

		select {
		case <-ctx.Done():
			atomic.StoreInt32(&e.isLeader, 0)
			return
		case <-e.session.Done():
			atomic.StoreInt32(&e.isLeader, 0)
			e.logger.Warn("lost contest scheduler leadership, session expired")
		}
	}
}

// IsLeader reports whether this process currently holds the election.
func (e *EtcdElector) IsLeader() bool {
	return atomic.LoadInt32(&e.isLeader) == 1
}

// Close releases the session and closes the etcd client.
func (e *EtcdElector) Close() error {
	if err := e.session.Close(); err != nil {
		return err
	}
	return e.client.Close()
}

// SingleProcessElector always reports leadership, for single-replica
// deployments and tests where etcd is not wired up.
type SingleProcessElector struct{}

func (SingleProcessElector) IsLeader() bool { return true }
