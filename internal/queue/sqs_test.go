package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSQS struct {
	sent     []*sqs.SendMessageInput
	received []*sqs.ReceiveMessageInput
	deleted  []string
	messages []types.Message
	err      error
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.sent = append(f.sent, in)
	return &sqs.SendMessageOutput{}, f.err
}

func (f *fakeSQS) ReceiveMessage(_ context.Context, in *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	f.received = append(f.received, in)
	if f.err != nil {
		return nil, f.err
	}
	return &sqs.ReceiveMessageOutput{Messages: f.messages}, nil
}

func (f *fakeSQS) DeleteMessage(_ context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.deleted = append(f.deleted, aws.ToString(in.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, f.err
}

const testQueueURL = "http://localhost:4566/000000000000/sms-inbound"

func TestSQSQueueSend(t *testing.T) {
	fake := &fakeSQS{}
	q := newSQSQueue(fake, testQueueURL)

	require.NoError(t, q.Send(context.Background(), `{"sender":"bKash"}`))
	require.Len(t, fake.sent, 1)
	assert.Equal(t, testQueueURL, aws.ToString(fake.sent[0].QueueUrl))
	assert.Equal(t, `{"sender":"bKash"}`, aws.ToString(fake.sent[0].MessageBody))
}

func TestSQSQueueReceiveClampsLimits(t *testing.T) {
	fake := &fakeSQS{messages: []types.Message{
		{MessageId: aws.String("id-1"), Body: aws.String("b1"), ReceiptHandle: aws.String("rh-1")},
	}}
	q := newSQSQueue(fake, testQueueURL)

	batch, err := q.Receive(context.Background(), 50, 60)
	require.NoError(t, err)
	require.Equal(t, []Message{{ID: "id-1", Body: "b1", ReceiptHandle: "rh-1"}}, batch)
	assert.Equal(t, int32(10), fake.received[0].MaxNumberOfMessages)
	assert.Equal(t, int32(20), fake.received[0].WaitTimeSeconds)

	_, err = q.Receive(context.Background(), 0, -1)
	require.NoError(t, err)
	assert.Equal(t, int32(1), fake.received[1].MaxNumberOfMessages)
	assert.Equal(t, int32(0), fake.received[1].WaitTimeSeconds)
}

func TestSQSQueueDelete(t *testing.T) {
	fake := &fakeSQS{}
	q := newSQSQueue(fake, testQueueURL)

	require.NoError(t, q.Delete(context.Background(), ""))
	assert.Empty(t, fake.deleted)
	require.NoError(t, q.Delete(context.Background(), "rh-9"))
	assert.Equal(t, []string{"rh-9"}, fake.deleted)
}

func TestSQSQueueWrapsErrors(t *testing.T) {
	boom := errors.New("throttled")
	q := newSQSQueue(&fakeSQS{err: boom}, testQueueURL)

	assert.ErrorIs(t, q.Send(context.Background(), "x"), boom)
	_, err := q.Receive(context.Background(), 1, 0)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, q.Delete(context.Background(), "rh"), boom)
}

func TestSQSQueueConstructorGuards(t *testing.T) {
	assert.Panics(t, func() { NewSQSQueue(nil, testQueueURL) })
	assert.Panics(t, func() { newSQSQueue(&fakeSQS{}, "") })
}
