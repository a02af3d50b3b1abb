package pubsub

import (
	"context"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/JakeFAU/quotes-crawler/internal/crawler"
)

func newTestClient(t *testing.T) (*pubsub.Client, *pstest.Server) {
	t.Helper()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	client, err := pubsub.NewClient(context.Background(), "quotes-test", option.WithGRPCConn(conn))
	require.NoError(t, err)
	return client, srv
}

func TestPublishSendsJSON(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client, srv := newTestClient(t)
	_, err := client.CreateTopic(ctx, "records")
	require.NoError(t, err)

	pub := New(client)
	defer func() { require.NoError(t, pub.Close()) }()

	id, err := pub.Publish(ctx, "records", crawler.RecordCrawled{RunID: "r1", URL: "https://www.quotes.net/movies/x", Title: "Up", Quotes: 2})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	require.JSONEq(t, `{"run_id":"r1","url":"https://www.quotes.net/movies/x","title":"Up","quotes":2}`, string(msgs[0].Data))
	require.Equal(t, "application/json", msgs[0].Attributes["content_type"])
}

func TestPublishMissingTopic(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t)
	pub := New(client)
	defer func() { _ = pub.Close() }()

	_, err := pub.Publish(context.Background(), "absent", map[string]string{"k": "v"})
	require.Error(t, err)
	_, err = pub.Publish(context.Background(), "", "x")
	require.Error(t, err)
}

func TestPublishWithoutClient(t *testing.T) {
	t.Parallel()

	_, err := (&Publisher{}).Publish(context.Background(), "t", "x")
	require.Error(t, err)
	_, err = Open(context.Background(), "")
	require.Error(t, err)
}
