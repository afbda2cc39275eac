package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/crowngate/internal/domain"
)

type fakeObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
	puts    []string
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: make(map[string][]byte)}
}

func (f *fakeObjects) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("missing")}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeObjects) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	key := aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)
	f.objects[key] = data
	f.puts = append(f.puts, key)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeObjects) HeadBucket(_ context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if aws.ToString(in.Bucket) != "lab-fallback" {
		return nil, &types.NotFound{}
	}
	return &s3.HeadBucketOutput{}, nil
}

func TestSlotStore_KeyLayout(t *testing.T) {
	assert.Equal(t, "orders.json", newWithClient(nil, "b", "").Key(domain.SlotOrders))
	assert.Equal(t, "crowngate/prod/users.json", newWithClient(nil, "b", "/crowngate/prod/").Key(domain.SlotUsers))
}

func TestSlotStore_LoadMissingObject(t *testing.T) {
	store := newWithClient(newFakeObjects(), "lab-fallback", "crowngate")

	data, ok, err := store.Load(context.Background(), domain.SlotOrders)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, data)
}

func TestSlotStore_SaveThenLoad(t *testing.T) {
	fake := newFakeObjects()
	store := newWithClient(fake, "lab-fallback", "crowngate")
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, map[domain.Slot][]byte{
		domain.SlotProducts: []byte(`[{"id":"PROD-001"}]`),
		domain.SlotOrders:   []byte(`[]`),
	}))
	assert.Equal(t, []string{
		"lab-fallback/crowngate/orders.json",
		"lab-fallback/crowngate/products.json",
	}, fake.puts)

	data, ok, err := store.Load(ctx, domain.SlotProducts)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `[{"id":"PROD-001"}]`, string(data))
	assert.NoError(t, store.Ping(ctx))
}

func TestSlotStore_SavePropagatesError(t *testing.T) {
	fake := newFakeObjects()
	fake.putErr = errors.New("access denied")
	store := newWithClient(fake, "lab-fallback", "")

	err := store.Save(context.Background(), map[domain.Slot][]byte{domain.SlotUsers: []byte(`[]`)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3 put users")
}

func TestSlotStore_PingUnknownBucket(t *testing.T) {
	store := newWithClient(newFakeObjects(), "other", "")
	require.Error(t, store.Ping(context.Background()))
}

func TestNew_RequiresBucket(t *testing.T) {
	_, err := New(context.Background(), Config{})
	require.Error(t, err)
}
