package pubsub

import (
	"context"
	"encoding/json"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/apiv1/pubsubpb"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/JakeFAU/bidharvest/internal/harvest"
)

func newTestClient(t *testing.T) (*pubsub.Client, *pstest.Server) {
	t.Helper()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(context.Background(), "test-project", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client, srv
}

func TestNotifyPublishes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client, srv := newTestClient(t)
	_, err := client.CreateTopic(ctx, "outreach")
	require.NoError(t, err)

	sink, err := New(client, "outreach", nil)
	require.NoError(t, err)
	defer sink.Stop()

	payload := harvest.Payload{Kind: harvest.PayloadBatch, Addresses: []string{"a@x.com"}}
	require.NoError(t, sink.Notify(ctx, payload))

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	var got harvest.Payload
	require.NoError(t, json.Unmarshal(msgs[0].Data, &got))
	assert.Equal(t, payload, got)
	assert.Equal(t, "batch", msgs[0].Attributes["kind"])
	assert.Equal(t, "1", msgs[0].Attributes["addresses"])
}

func TestNotifyMissingTopic(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t)
	sink, err := New(client, "absent", nil)
	require.NoError(t, err)
	defer sink.Stop()

	err = sink.Notify(context.Background(), harvest.Payload{Kind: harvest.PayloadBatch, Addresses: []string{"a@x.com"}})
	assert.ErrorIs(t, err, harvest.ErrSink)
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, "t", nil)
	assert.Error(t, err)
}

func TestDialPublishes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })
	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	_, err = srv.GServer.CreateTopic(ctx, &pubsubpb.Topic{Name: "projects/proj/topics/outreach"})
	require.NoError(t, err)

	sink, err := Dial(ctx, Config{ProjectID: "proj", Topic: "outreach"}, nil, option.WithGRPCConn(conn))
	require.NoError(t, err)
	require.NoError(t, sink.Notify(ctx, harvest.Payload{Kind: harvest.PayloadSingle, Addresses: []string{"b@y.com"}}))
	sink.Stop()

	require.Len(t, srv.Messages(), 1)
}

func TestDialValidation(t *testing.T) {
	t.Parallel()

	_, err := Dial(context.Background(), Config{Topic: "t"}, nil)
	assert.ErrorContains(t, err, "project id")
}
