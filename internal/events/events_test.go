package events

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderKeepsOrder(t *testing.T) {
	var rec Recorder
	ctx := context.Background()
	require.NoError(t, rec.Publish(ctx, SubjectClaimCreated, map[string]string{"id": "1"}))
	require.NoError(t, rec.Publish(ctx, SubjectTransactionStatus, map[string]string{"id": "2"}))
	assert.Equal(t, []string{SubjectClaimCreated, SubjectTransactionStatus}, rec.Subjects())
}

func TestNoopPublisher(t *testing.T) {
	var p Publisher = Noop{}
	assert.NoError(t, p.Publish(context.Background(), SubjectClaimRedeemed, nil))
	assert.NoError(t, p.Close())
}

func TestNATSPublisherConnectFailure(t *testing.T) {
	_, err := NewNATSPublisher("nats://127.0.0.1:1", 0, logrus.New())
	require.Error(t, err)
}
